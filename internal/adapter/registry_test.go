package adapter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/iri-facility-api/internal/facility"
)

type authOnly struct{}

func (authOnly) ResolveIdentity(context.Context, string, string) (string, error) { return "u", nil }
func (authOnly) GetUser(context.Context, string, string) (*facility.User, error) {
	return &facility.User{ID: "u"}, nil
}

type statusOnly struct{ authOnly }

func (statusOnly) GetResources(context.Context, facility.ResourceFilter) ([]facility.Resource, error) {
	return nil, nil
}
func (statusOnly) GetResource(context.Context, string) (*facility.Resource, error) { return nil, nil }
func (statusOnly) GetEvents(context.Context, string, facility.EventFilter) ([]facility.Event, error) {
	return nil, nil
}
func (statusOnly) GetEvent(context.Context, string, string) (*facility.Event, error) { return nil, nil }
func (statusOnly) GetIncidents(context.Context, facility.IncidentFilter) ([]facility.Incident, error) {
	return nil, nil
}
func (statusOnly) GetIncident(context.Context, string) (*facility.Incident, error) { return nil, nil }

var _ facility.StatusAdapter = statusOnly{}

func countingFactory(calls *atomic.Int32, inst any) Factory {
	return func(Deps) (any, error) {
		calls.Add(1)
		return inst, nil
	}
}

func TestResolveReturnsSingleton(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	reg := NewRegistry(Options{Configured: map[string]string{"status": "custom"}})
	reg.Register("custom", countingFactory(&calls, &statusOnly{}))

	first, b, err := Resolve[facility.StatusAdapter](reg, facility.SubDomainStatus)
	require.NoError(t, err)
	require.Equal(t, Binding{SubDomain: facility.SubDomainStatus, Implementation: "custom", Configured: true}, b)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			again, _, err := Resolve[facility.StatusAdapter](reg, facility.SubDomainStatus)
			assert.NoError(t, err)
			assert.Same(t, first.(*statusOnly), again.(*statusOnly))
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, calls.Load())
}

func TestImplementationSharedAcrossSubDomains(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	reg := NewRegistry(Options{})
	reg.Register(DefaultImplementation, countingFactory(&calls, &statusOnly{}))

	_, _, err := Resolve[facility.StatusAdapter](reg, facility.SubDomainStatus)
	require.NoError(t, err)
	_, _, err = Resolve[facility.AccountAdapter](reg, facility.SubDomainAccount)
	require.ErrorIs(t, err, ErrContractNotSatisfied)
	require.EqualValues(t, 1, calls.Load())
}

func TestResolveRejectsPartialBackend(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(Options{Configured: map[string]string{"status": "partial"}})
	reg.Register("partial", func(Deps) (any, error) { return authOnly{}, nil })

	_, _, err := Resolve[facility.StatusAdapter](reg, facility.SubDomainStatus)
	require.ErrorIs(t, err, ErrContractNotSatisfied)

	_, err = reg.Adapter("status")
	require.Error(t, err, "a rejected backend must never become reachable")
}

func TestResolveUnknownImplementation(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(Options{Configured: map[string]string{"compute": "slurm"}})
	_, _, err := reg.Instance(facility.SubDomainCompute)
	require.ErrorIs(t, err, ErrUnknownImplementation)
}

func TestFactoryErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	reg := NewRegistry(Options{})
	reg.Register(DefaultImplementation, func(Deps) (any, error) { return nil, boom })
	_, _, err := reg.Instance(facility.SubDomainStatus)
	require.ErrorIs(t, err, boom)
}

func TestBindVisibility(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		configured map[string]string
		show       bool
		want       Binding
	}{
		{
			name: "unconfigured hidden",
			want: Binding{SubDomain: facility.SubDomainFilesystem, Implementation: DefaultImplementation, Hidden: true},
		},
		{
			name: "unconfigured shown by flag",
			show: true,
			want: Binding{SubDomain: facility.SubDomainFilesystem, Implementation: DefaultImplementation},
		},
		{
			name:       "configured visible",
			configured: map[string]string{"filesystem": "demo"},
			want:       Binding{SubDomain: facility.SubDomainFilesystem, Implementation: "demo", Configured: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg := NewRegistry(Options{Configured: tt.configured, ShowMissing: tt.show})
			got, err := reg.Bind(facility.SubDomainFilesystem)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := NewRegistry(Options{}).Bind("billing")
	require.Error(t, err)
}

func TestFactoryReceivesDeps(t *testing.T) {
	t.Parallel()

	var got Deps
	reg := NewRegistry(Options{})
	reg.Register(DefaultImplementation, func(d Deps) (any, error) {
		got = d
		return &statusOnly{}, nil
	})
	reg.SetTasks(nil)
	_, _, err := reg.Instance(facility.SubDomainStatus)
	require.NoError(t, err)
	require.Nil(t, got.Tasks)
	require.Equal(t, []string{DefaultImplementation}, reg.Implementations())

	inst, err := reg.Adapter("status")
	require.NoError(t, err)
	require.IsType(t, &statusOnly{}, inst)
}
