package dns

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/customeros/domails/interfaces"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/models"
)

// MockResolver is an in-memory DNSInspector for tests. Names are matched
// case-insensitively without the trailing dot.
type MockResolver struct {
	mu    sync.RWMutex
	TXT   map[string][]string
	MX    map[string][]models.MXRecord
	CNAME map[string][]string

	// Fail lists lookups answered with a DNSLookupError, as "type name",
	// e.g. "txt example.org".
	Fail []string
}

var _ interfaces.DNSInspector = (*MockResolver)(nil)

func NewMockResolver() *MockResolver {
	return &MockResolver{
		TXT:   make(map[string][]string),
		MX:    make(map[string][]models.MXRecord),
		CNAME: make(map[string][]string),
	}
}

func mockKey(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

func (r *MockResolver) SetTXT(name string, values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TXT[mockKey(name)] = values
}

func (r *MockResolver) SetMX(name string, records ...models.MXRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.MX[mockKey(name)] = records
}

func (r *MockResolver) SetCNAME(name string, targets ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CNAME[mockKey(name)] = targets
}

func (r *MockResolver) fail(ctx context.Context, qtype, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if slices.Contains(r.Fail, qtype+" "+mockKey(name)) {
		return &domailsErrors.DNSLookupError{Name: name, Type: strings.ToUpper(qtype), Cause: errServFail}
	}
	return nil
}

func (r *MockResolver) ResolveMX(ctx context.Context, name string) ([]models.MXRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail(ctx, "mx", name); err != nil {
		return nil, err
	}
	return slices.Clone(r.MX[mockKey(name)]), nil
}

func (r *MockResolver) ResolveTXT(ctx context.Context, name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail(ctx, "txt", name); err != nil {
		return nil, err
	}
	return slices.Clone(r.TXT[mockKey(name)]), nil
}

func (r *MockResolver) ResolveCNAME(ctx context.Context, name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.fail(ctx, "cname", name); err != nil {
		return nil, err
	}
	return slices.Clone(r.CNAME[mockKey(name)]), nil
}
