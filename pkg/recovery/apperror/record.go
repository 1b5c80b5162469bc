package apperror

import (
	"maps"
	"regexp"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Well-known keys of Record.Context.
const (
	// ContextForce requests a destructive reset regardless of severity.
	ContextForce = "force"

	// ContextComponent names the UI component that failed.
	ContextComponent = "component"

	// ContextSource names the fault source (global handler, boundary, manual).
	ContextSource = "source"
)

// Record describes a single logical fault.
//
// Records are produced by the error-reporting side and are read-only to
// the recovery engine. Repeated occurrences of the same fault increment
// Count on the original record (see Store).
type Record struct {
	ID          string         `json:"id"`
	Message     string         `json:"message"`
	Stack       string         `json:"stack,omitempty"`
	Category    Category       `json:"category"`
	Severity    Severity       `json:"severity"`
	CreatedAt   time.Time      `json:"created_at"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
	Count       int            `json:"count"`
	Fingerprint string         `json:"fingerprint"`
	Context     map[string]any `json:"context,omitempty"`
}

// Option configures a Record at creation.
type Option func(*Record)

// WithID sets a specific record ID (default: random UUID).
func WithID(id string) Option {
	return func(r *Record) {
		r.ID = id
	}
}

// WithStack attaches a stack trace.
func WithStack(stack string) Option {
	return func(r *Record) {
		r.Stack = stack
	}
}

// WithContext merges values into the record context.
func WithContext(values map[string]any) Option {
	return func(r *Record) {
		if r.Context == nil {
			r.Context = make(map[string]any, len(values))
		}
		maps.Copy(r.Context, values)
	}
}

// WithForce marks the record as an explicit request for a destructive reset.
func WithForce() Option {
	return WithContext(map[string]any{ContextForce: true})
}

// WithTimestamp sets the creation time (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(r *Record) {
		r.CreatedAt = t
	}
}

// New creates a record for a fault.
func New(message string, category Category, severity Severity, opts ...Option) *Record {
	r := &Record{
		ID:        uuid.New().String(),
		Message:   message,
		Category:  category,
		Severity:  severity,
		CreatedAt: time.Now(),
		Count:     1,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !r.Category.Valid() {
		r.Category = CategoryUnknown
	}
	r.LastSeenAt = r.CreatedAt
	r.Fingerprint = Fingerprint(r.Message, r.Stack, r.Category)
	return r
}

// FromError creates a record from a Go error using Categorize and SeverityOf.
func FromError(err error, opts ...Option) *Record {
	if err == nil {
		return New("unknown error", CategoryUnknown, SeverityLow, opts...)
	}
	return New(err.Error(), Categorize(err), SeverityOf(err), opts...)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Context = maps.Clone(r.Context)
	return &c
}

// Forced reports whether the record carries an explicit force flag.
func (r *Record) Forced() bool {
	if r == nil || r.Context == nil {
		return false
	}
	switch v := r.Context[ContextForce].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	default:
		return false
	}
}

// ContextString returns a string value from the record context.
func (r *Record) ContextString(key string) string {
	if r == nil || r.Context == nil {
		return ""
	}
	if s, ok := r.Context[key].(string); ok {
		return s
	}
	return ""
}

// Fingerprint hashes the identifying content of a fault.
// Two records with the same fingerprint describe the same logical fault.
func Fingerprint(message, stack string, category Category) string {
	h := xxhash.New()
	_, _ = h.WriteString(string(category))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(message)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(stack)
	return strconv.FormatUint(h.Sum64(), 16)
}

var chunkLoadPattern = regexp.MustCompile(`(?i)(chunkloaderror|loading (css )?chunk \S+ failed|failed to fetch dynamically imported module|error loading module)`)

// MentionsChunkLoad reports whether the record message describes a
// chunk/module load failure.
func (r *Record) MentionsChunkLoad() bool {
	if r == nil {
		return false
	}
	return chunkLoadPattern.MatchString(r.Message)
}

// criticalCategories pass the criticality gate regardless of severity.
var criticalCategories = map[Category]bool{
	CategoryRuntime:   true,
	CategoryRendering: true,
	CategoryGlobal:    true,
}

// IsCritical is the default criticality gate: severity high or critical,
// or a category in the runtime/rendering/global set.
func IsCritical(r *Record) bool {
	if r == nil {
		return false
	}
	if r.Severity.AtLeast(SeverityHigh) {
		return true
	}
	return criticalCategories[r.Category]
}

// CriticalIn returns a criticality gate that passes severity high/critical
// or any of the given categories.
func CriticalIn(categories ...Category) func(*Record) bool {
	set := make(map[Category]bool, len(categories))
	for _, c := range categories {
		set[c] = true
	}
	return func(r *Record) bool {
		if r == nil {
			return false
		}
		return r.Severity.AtLeast(SeverityHigh) || set[r.Category]
	}
}
