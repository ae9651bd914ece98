package invoice

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/avandenberg/chargeclaim/internal/domain"
	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
)

// ErrUnparseable indicates a document whose required fields could not be
// located. It is per-document: the batch proceeds without it.
var ErrUnparseable = errors.New("unparseable invoice document")

// Field patterns over the rendered text layer of a charging invoice.
// Extraction is a deterministic search for labeled fields, not OCR.
var (
	sessionIDRe = regexp.MustCompile(`(?im)^(?:charge\s+)?session\s*(?:id|no\.?)?\s*[:#]\s*(\S+)`)
	amountRe    = regexp.MustCompile(`(?im)^total(?:\s+amount)?(?:\s+due)?\s*:\s*(?:EUR|€)?\s*([0-9]+(?:[.,][0-9]{1,2})?)`)
	energyRe    = regexp.MustCompile(`(?im)([0-9]+(?:[.,][0-9]+)?)\s*kWh`)
	dateRe      = regexp.MustCompile(`(?im)^(?:invoice\s+)?date\s*:\s*([0-9]{4}-[0-9]{2}-[0-9]{2})`)
	locationRe  = regexp.MustCompile(`(?im)^location\s*:\s*(.+?)\s*$`)
)

// Extractor parses scanned/printed charging invoices into canonical
// session records.
type Extractor struct {
	logger *log.Logger
}

// NewExtractor creates an invoice extractor.
func NewExtractor(logger *log.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// ExtractSessions reads the invoice document at path, or every document
// inside a .zip archive, and returns one canonical session per parseable
// document in document order. Documents with missing required fields are
// skipped with a warning; they never abort the batch.
func (e *Extractor) ExtractSessions(path string) ([]domain.ChargingSession, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return e.extractArchive(path)
	}

	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading invoice %s: %w", path, err)
	}
	s, err := ParseDocument(filepath.Base(path), string(text))
	if err != nil {
		if errors.Is(err, ErrUnparseable) {
			e.logger.Warn("skipping invoice", "document", filepath.Base(path), "err", err)
			return nil, nil
		}
		return nil, err
	}
	return []domain.ChargingSession{s}, nil
}

func (e *Extractor) extractArchive(path string) ([]domain.ChargingSession, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening invoice archive %s: %w", path, err)
	}
	defer r.Close()

	var sessions []domain.ChargingSession
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening archive entry %s: %w", f.Name, err)
		}
		text, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading archive entry %s: %w", f.Name, err)
		}

		s, err := ParseDocument(f.Name, string(text))
		if err != nil {
			if errors.Is(err, ErrUnparseable) {
				e.logger.Warn("skipping invoice", "document", f.Name, "err", err)
				continue
			}
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// ParseDocument locates the billing facts in one document's text layer.
func ParseDocument(name, text string) (domain.ChargingSession, error) {
	var s domain.ChargingSession

	m := sessionIDRe.FindStringSubmatch(text)
	if m == nil {
		return s, fmt.Errorf("%w: %s: session id not found", ErrUnparseable, name)
	}
	s.SessionID = m[1]

	m = amountRe.FindStringSubmatch(text)
	if m == nil {
		return s, fmt.Errorf("%w: %s: total amount not found", ErrUnparseable, name)
	}
	amount, err := decimal.NewFromString(normalizeDecimal(m[1]))
	if err != nil {
		return s, fmt.Errorf("%w: %s: bad amount %q", ErrUnparseable, name, m[1])
	}
	s.CostAmount = amount
	s.Currency = "EUR"

	m = energyRe.FindStringSubmatch(text)
	if m == nil {
		return s, fmt.Errorf("%w: %s: energy not found", ErrUnparseable, name)
	}
	energy, err := decimal.NewFromString(normalizeDecimal(m[1]))
	if err != nil {
		return s, fmt.Errorf("%w: %s: bad energy %q", ErrUnparseable, name, m[1])
	}
	s.EnergyKWh = energy

	m = dateRe.FindStringSubmatch(text)
	if m == nil {
		return s, fmt.Errorf("%w: %s: date not found", ErrUnparseable, name)
	}
	day, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return s, fmt.Errorf("%w: %s: bad date %q", ErrUnparseable, name, m[1])
	}
	s.StartedAt = day

	if m = locationRe.FindStringSubmatch(text); m != nil {
		s.LocationLabel = m[1]
	}

	// Invoices handled here are supercharger invoices by definition; the
	// eligibility filter still runs in the engine.
	s.IsSupercharging = true
	return s, nil
}

func normalizeDecimal(v string) string {
	return strings.ReplaceAll(v, ",", ".")
}
