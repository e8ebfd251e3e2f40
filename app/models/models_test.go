package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

// Time columns must hold dates past 2038, so none of them may be a MySQL
// TIMESTAMP.
func TestTimeColumnsAreDatetime(t *testing.T) {
	tests := []struct {
		model  any
		fields []string
	}{
		{&Entitlement{}, []string{"StartsAt", "ExpiresAt"}},
		{&WebhookEvent{}, []string{"ReceivedAt", "ProcessedAt"}},
	}

	for _, tt := range tests {
		s, err := schema.Parse(tt.model, &sync.Map{}, schema.NamingStrategy{})
		require.NoError(t, err)
		for _, name := range tt.fields {
			f := s.LookUpField(name)
			require.NotNil(t, f, name)
			assert.Equal(t, "datetime(3)", f.TagSettings["TYPE"], "%s.%s", s.Name, name)
		}
	}
}

func TestEntitlementSourceIndex(t *testing.T) {
	s, err := schema.Parse(&Entitlement{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	idx := s.LookIndex("idx_entitlements_source")
	require.NotNil(t, idx)
	require.Len(t, idx.Fields, 2)
	assert.Equal(t, "source_provider", idx.Fields[0].DBName)
	assert.Equal(t, "source_id", idx.Fields[1].DBName)
}
