package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgPaymentStore mirrors payment records into the payments table. It
// stands in for the external payment system's store.
type PgPaymentStore struct {
	pool *pgxpool.Pool
}

func NewPgPaymentStore(pool *pgxpool.Pool) *PgPaymentStore {
	return &PgPaymentStore{pool: pool}
}

func (p *PgPaymentStore) Record(ctx context.Context, rec PaymentRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO payments (id, appointment_id, patient_id, amount, method, transaction_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.AppointmentID, rec.PatientID, rec.Amount, rec.Method, rec.TransactionID, rec.Status, rec.CreatedAt)
	return err
}

func (p *PgPaymentStore) RefundForAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2
		WHERE appointment_id = $1
		  AND status = $3
	`, appointmentID, PaymentRefunded, PaymentPaid)
	return err
}
