package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository used by tests and the
// local simulator. The mutex gives it the same atomicity on ClaimSlot
// that the conditional UPDATE gives the Postgres implementation.
type MemoryRepository struct {
	mu sync.Mutex

	patients     map[uuid.UUID]*Patient
	doctors      map[uuid.UUID]*Doctor
	clinics      map[uuid.UUID]*Clinic
	rooms        map[uuid.UUID]*Room
	slots        map[uuid.UUID]*Slot
	slotKeys     map[string]uuid.UUID // identity tuple -> slot id
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]*Patient),
		doctors:      make(map[uuid.UUID]*Doctor),
		clinics:      make(map[uuid.UUID]*Clinic),
		rooms:        make(map[uuid.UUID]*Room),
		slots:        make(map[uuid.UUID]*Slot),
		slotKeys:     make(map[string]uuid.UUID),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

// Seed helpers

func (m *MemoryRepository) AddPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.patients[p.ID] = &cp
}

func (m *MemoryRepository) AddDoctor(d Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := d
	m.doctors[d.ID] = &cp
}

func (m *MemoryRepository) AddClinic(c Clinic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := c
	m.clinics[c.ID] = &cp
}

func (m *MemoryRepository) AddRoom(r Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := r
	m.rooms[r.ID] = &cp
}

// Events returns a copy of the recorded event log.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventLog, len(m.events))
	copy(out, m.events)
	return out
}

func slotKey(doctorID, clinicID, roomID uuid.UUID, date, startTime string) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", doctorID, clinicID, roomID, date, startTime)
}

// Reference data

func (m *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	cp.ScheduleDays = append([]ScheduleRow(nil), d.ScheduleDays...)
	return &cp, nil
}

func (m *MemoryRepository) GetClinicByID(_ context.Context, id uuid.UUID) (*Clinic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryRepository) GetRoomByID(_ context.Context, id uuid.UUID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) ListClinicRooms(_ context.Context, clinicID uuid.UUID) ([]Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Room
	for _, r := range m.rooms {
		if r.ClinicID == clinicID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (m *MemoryRepository) UpdateDoctorSchedule(_ context.Context, doctorID uuid.UUID, rows []ScheduleRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.doctors[doctorID]
	if !ok {
		return ErrDoctorNotFound
	}
	d.ScheduleDays = append([]ScheduleRow(nil), rows...)
	return nil
}

// Slots

func (m *MemoryRepository) CreateSlot(_ context.Context, slot *Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := slotKey(slot.DoctorID, slot.ClinicID, slot.RoomID, slot.Date, slot.StartTime)
	if _, exists := m.slotKeys[key]; exists {
		return ErrDuplicateSlot
	}

	cp := *slot
	m.slots[slot.ID] = &cp
	m.slotKeys[key] = slot.ID
	return nil
}

func (m *MemoryRepository) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) ClaimSlot(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if s.Status != SlotAvailable {
		return ErrSlotUnavailable
	}
	s.Status = SlotBooked
	return nil
}

func (m *MemoryRepository) ReleaseSlot(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if s.Status == SlotBooked {
		s.Status = SlotAvailable
	}
	return nil
}

func (m *MemoryRepository) DeleteAvailableSlot(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok || s.Status != SlotAvailable {
		return false, nil
	}
	delete(m.slots, id)
	delete(m.slotKeys, slotKey(s.DoctorID, s.ClinicID, s.RoomID, s.Date, s.StartTime))
	return true, nil
}

func (m *MemoryRepository) ListAvailableSlots(_ context.Context, doctorID uuid.UUID, fromDate, toDate string) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Slot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Status == SlotAvailable && s.Date >= fromDate && s.Date <= toDate {
			out = append(out, *s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (m *MemoryRepository) ListFutureAvailableSlots(_ context.Context, doctorID uuid.UUID, nowDate, nowClock string) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Slot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Status == SlotAvailable && slotAfter(s, nowDate, nowClock) {
			out = append(out, *s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (m *MemoryRepository) FindExpiredBookedSlots(_ context.Context, nowDate, nowClock string) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Slot
	for _, s := range m.slots {
		if s.Status == SlotBooked && slotBefore(s, nowDate, nowClock) {
			out = append(out, *s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (m *MemoryRepository) FindOrphanedBookedSlots(_ context.Context) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A slot with a terminal appointment is not orphaned; only slots no
	// appointment row references at all are claim leftovers.
	referenced := make(map[uuid.UUID]bool)
	for _, a := range m.appointments {
		referenced[a.SlotID] = true
	}

	var out []Slot
	for _, s := range m.slots {
		if s.Status == SlotBooked && !referenced[s.ID] {
			out = append(out, *s)
		}
	}
	sortSlots(out)
	return out, nil
}

// ISO date and HH:MM strings compare correctly as plain strings.
func slotAfter(s *Slot, date, clock string) bool {
	return s.Date > date || (s.Date == date && s.StartTime > clock)
}

func slotBefore(s *Slot, date, clock string) bool {
	return s.Date < date || (s.Date == date && s.StartTime < clock)
}

func sortSlots(slots []Slot) {
	sort.Slice(slots, func(a, b int) bool {
		if slots[a].Date != slots[b].Date {
			return slots[a].Date < slots[b].Date
		}
		return slots[a].StartTime < slots[b].StartTime
	})
}

// Appointments

func (m *MemoryRepository) CreateAppointment(_ context.Context, appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.appointments {
		if existing.SlotID == appt.SlotID && existing.Status.IsLive() {
			return ErrSlotTaken
		}
	}

	cp := *appt
	cp.Notes = append([]string(nil), appt.Notes...)
	m.appointments[appt.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	cp.Notes = append([]string(nil), a.Notes...)
	return &cp, nil
}

func (m *MemoryRepository) TransitionAppointment(_ context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, note string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}

	matched := false
	for _, st := range from {
		if a.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrWrongState
	}

	a.Status = to
	a.Notes = append(a.Notes, note)

	cp := *a
	cp.Notes = append([]string(nil), a.Notes...)
	return &cp, nil
}

func (m *MemoryRepository) MoveAppointmentSlot(_ context.Context, id, slotID, clinicID, roomID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if !a.Status.IsLive() {
		return nil, ErrWrongState
	}

	a.SlotID = slotID
	a.ClinicID = clinicID
	a.RoomID = roomID
	a.Notes = append(a.Notes, "Rescheduled by patient")

	cp := *a
	cp.Notes = append([]string(nil), a.Notes...)
	return &cp, nil
}

func (m *MemoryRepository) ListFutureLiveAppointments(_ context.Context, doctorID uuid.UUID, nowDate, nowClock string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appointments {
		if a.DoctorID != doctorID || !a.Status.IsLive() {
			continue
		}
		s, ok := m.slots[a.SlotID]
		if !ok || !slotAfter(s, nowDate, nowClock) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *MemoryRepository) ListLiveAppointmentsBySlots(_ context.Context, slotIDs []uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[uuid.UUID]bool, len(slotIDs))
	for _, id := range slotIDs {
		wanted[id] = true
	}

	var out []Appointment
	for _, a := range m.appointments {
		if a.Status.IsLive() && wanted[a.SlotID] {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

// MemoryPaymentSink collects mirrored payment records in memory.
type MemoryPaymentSink struct {
	mu      sync.Mutex
	records []PaymentRecord
}

func NewMemoryPaymentSink() *MemoryPaymentSink {
	return &MemoryPaymentSink{}
}

func (p *MemoryPaymentSink) Record(_ context.Context, rec PaymentRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return nil
}

func (p *MemoryPaymentSink) RefundForAppointment(_ context.Context, appointmentID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.records {
		if p.records[i].AppointmentID == appointmentID && p.records[i].Status == PaymentPaid {
			p.records[i].Status = PaymentRefunded
		}
	}
	return nil
}

// Records returns a copy of everything mirrored so far.
func (p *MemoryPaymentSink) Records() []PaymentRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PaymentRecord, len(p.records))
	copy(out, p.records)
	return out
}
