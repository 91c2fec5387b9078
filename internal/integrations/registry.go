// Package integrations holds the connectors for external services the
// assistant depends on. Each connector knows how to validate its credential
// payload and to test it against the live service; storage and encryption
// stay with the credentials service.
package integrations

import (
	"context"
	"fmt"

	"ledgermate-backend/internal/models"
	integration_models "ledgermate-backend/internal/models/integrations"
	"ledgermate-backend/pkg/logger"
)

// Integration is one external service connector.
type Integration interface {
	// ValidateCredentials checks that the decrypted payload carries the
	// keys this service needs. Called before anything is stored.
	ValidateCredentials(creds integration_models.DecryptedCredentials) error

	// TestConnection verifies the credentials against the live service. A
	// failed check is a result, not an error; errors are reserved for
	// transport and system faults.
	TestConnection(ctx context.Context, creds integration_models.DecryptedCredentials) (*integration_models.TestConnectionResult, error)
}

// Registry maps service types to their connectors.
type Registry struct {
	integrations map[models.ServiceType]Integration
	log          *logger.Logger
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{
		integrations: make(map[models.ServiceType]Integration),
		log:          logger.Get().WithComponent("integrations"),
	}
}

// Register adds a connector, replacing any previous one for the type.
func (r *Registry) Register(serviceType models.ServiceType, integration Integration) {
	if _, exists := r.integrations[serviceType]; exists {
		r.log.Warn("integration already registered, overwriting", "service_type", string(serviceType))
	}
	r.integrations[serviceType] = integration
}

// Get returns the connector for a service type.
func (r *Registry) Get(serviceType models.ServiceType) (Integration, error) {
	integration, ok := r.integrations[serviceType]
	if !ok {
		return nil, fmt.Errorf("unsupported service type %q", serviceType)
	}
	return integration, nil
}

// Supported lists the registered service types.
func (r *Registry) Supported() []models.ServiceType {
	types := make([]models.ServiceType, 0, len(r.integrations))
	for t := range r.integrations {
		types = append(types, t)
	}
	return types
}

// NewDefaultRegistry wires up the connectors this service ships with.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(models.ServiceTypeSlack, NewSlackIntegration())
	r.Register(models.ServiceTypeNotion, NewNotionIntegration())
	return r
}
