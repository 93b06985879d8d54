package storage

import (
	"testing"
	"time"

	"github.com/poiesic/termreg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermRoundTrip(t *testing.T) {
	now := core.TruncateToMicro(time.Now().UTC())
	term := &core.Term{
		Id:             core.IDFromContent("CY-NC|local_info|en|customs"),
		MarketID:       "CY-NC",
		Domain:         "local_info",
		BaseTerm:       "customs",
		Language:       "en",
		LocalizedTerm:  "customs office",
		RouteTarget:    "gov/customs",
		EntityRef:      7,
		Monetization:   map[string]string{"tier": "free"},
		Metadata:       map[string]string{"source": "crawl"},
		Embedding:      []float32{0.25, -0.5, 0.75},
		LastEmbeddedAt: now,
		InsertedAt:     now,
		UpdatedAt:      now,
	}

	decoded, err := UnmarshalTerm(MarshalTerm(term))
	require.NoError(t, err)
	assert.Equal(t, term, decoded)
}

func TestEntityRoundTrip(t *testing.T) {
	now := core.TruncateToMicro(time.Now().UTC())
	entity := &core.DirectoryEntity{
		Id:            3,
		MarketID:      "CY-NC",
		Category:      "pharmacy",
		City:          "Nicosia",
		Address:       "1 Main Street",
		Latitude:      35.17,
		Longitude:     33.36,
		Phone:         "+90 392 000 0000",
		LocalizedData: map[string]string{"en": "pharmacy in Nicosia"},
		InsertedAt:    now,
		UpdatedAt:     now,
	}

	decoded, err := UnmarshalEntity(MarshalEntity(entity))
	require.NoError(t, err)
	assert.Equal(t, entity, decoded)
}

func TestUnmarshalTerm_Truncated(t *testing.T) {
	_, err := UnmarshalTerm([]byte{0x01})
	assert.Error(t, err)
}
