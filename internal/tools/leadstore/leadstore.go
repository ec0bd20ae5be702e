// Package leadstore persists sales leads captured during calls to PostgreSQL
// and exposes the registrar_lead tool over that store. Phone numbers arrive
// as transcribed speech ("nueve nueve ocho..."), so normalisation converts
// Spanish number words to digits before validation.
package leadstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atelic-ai/voceria/pkg/types"
)

// Schema is the SQL DDL for the leads table. Execute it via [Store.Migrate]
// or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS leads (
    id         BIGSERIAL PRIMARY KEY,
    name       TEXT NOT NULL,
    company    TEXT NOT NULL DEFAULT '',
    phone      TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'nuevo',
    call_id    TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_leads_phone ON leads(phone);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Lead is one captured prospect.
type Lead struct {
	ID        int64
	Name      string
	Company   string
	Phone     string
	CallID    string
	CreatedAt time.Time
}

// ErrInvalidPhone is returned when a phone number does not normalise to
// exactly ten digits.
var ErrInvalidPhone = errors.New("leadstore: phone must normalise to 10 digits")

// Store persists leads.
type Store struct {
	db  DB
	log *slog.Logger
}

// NewStore creates a Store over the given connection or pool. The caller is
// responsible for calling [Store.Migrate] before issuing queries.
func NewStore(db DB, log *slog.Logger) *Store {
	return &Store{db: db, log: log}
}

// Migrate executes the [Schema] DDL against the database.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("leadstore: migrate: %w", err)
	}
	return nil
}

// Save validates and inserts the lead, filling ID and CreatedAt.
func (s *Store) Save(ctx context.Context, lead *Lead) error {
	if strings.TrimSpace(lead.Name) == "" {
		return errors.New("leadstore: lead name must not be empty")
	}
	phone, err := NormalizePhone(lead.Phone)
	if err != nil {
		return err
	}
	lead.Phone = phone

	const query = `
		INSERT INTO leads (name, company, phone, call_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err = s.db.QueryRow(ctx, query,
		lead.Name, lead.Company, lead.Phone, lead.CallID,
	).Scan(&lead.ID, &lead.CreatedAt)
	if err != nil {
		return fmt.Errorf("leadstore: save: %w", err)
	}
	s.log.Info("lead saved", "name", lead.Name, "company", lead.Company)
	return nil
}

// ─── Tool surface ───────────────────────────────────────────────────────────

// Definition describes the registrar_lead tool.
func (s *Store) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "registrar_lead",
		Description: "Registra los datos de un cliente potencial (nombre, empresa y teléfono).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"nombre":   map[string]any{"type": "string"},
				"empresa":  map[string]any{"type": "string"},
				"telefono": map[string]any{"type": "string"},
			},
			"required": []any{"nombre", "telefono"},
		},
	}
}

// Handle executes a registrar_lead call.
func (s *Store) Handle(ctx context.Context, args map[string]any) types.ToolResult {
	name, _ := args["nombre"].(string)
	company, _ := args["empresa"].(string)
	phone, _ := args["telefono"].(string)
	callID, _ := args["call_id"].(string)

	lead := Lead{Name: name, Company: company, Phone: phone, CallID: callID}
	if err := s.Save(ctx, &lead); err != nil {
		s.log.Error("lead save failed", "err", err)
		if errors.Is(err, ErrInvalidPhone) {
			return types.ToolResult{
				"status": "error",
				"error":  "telefono_invalido",
			}
		}
		return types.ToolResult{
			"status": "error",
			"error":  "no_se_pudo_guardar",
		}
	}
	return types.ToolResult{
		"status":  "success",
		"message": fmt.Sprintf("He registrado tus datos, %s. Un especialista se pondrá en contacto contigo pronto.", name),
	}
}

// ─── Phone normalisation ────────────────────────────────────────────────────

var wordDigits = map[string]string{
	"cero": "0", "uno": "1", "dos": "2", "tres": "3", "cuatro": "4",
	"cinco": "5", "seis": "6", "siete": "7", "ocho": "8", "nueve": "9",
	"diez": "10", "once": "11", "doce": "12", "trece": "13", "catorce": "14",
	"quince": "15", "dieciséis": "16", "dieciseis": "16", "diecisiete": "17",
	"dieciocho": "18", "diecinueve": "19",
	"veinte": "20", "veintiuno": "21", "veintidós": "22", "veintidos": "22",
	"veintitrés": "23", "veintitres": "23", "veinticuatro": "24",
	"veinticinco": "25", "veintiséis": "26", "veintiseis": "26",
	"veintisiete": "27", "veintiocho": "28", "veintinueve": "29",
	"treinta": "30", "cuarenta": "40", "cincuenta": "50",
	"sesenta": "60", "setenta": "70", "ochenta": "80", "noventa": "90",
}

var nonDigit = regexp.MustCompile(`\D`)

// NormalizePhone converts Spanish number words to digits, strips everything
// that is not a digit, and requires exactly ten digits in the result.
func NormalizePhone(text string) (string, error) {
	lower := strings.ToLower(text)

	fields := strings.Fields(lower)
	for i, f := range fields {
		if d, ok := wordDigits[strings.Trim(f, ".,;")]; ok {
			fields[i] = d
		}
	}
	digits := nonDigit.ReplaceAllString(strings.Join(fields, " "), "")
	if len(digits) != 10 {
		return "", fmt.Errorf("%w: got %d digits from %q", ErrInvalidPhone, len(digits), text)
	}
	return digits, nil
}
