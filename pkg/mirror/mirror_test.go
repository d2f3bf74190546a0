package mirror

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrail-ai/papertrail/backend/pkg/common"
)

func TestNewFromEnvDisabled(t *testing.T) {
	t.Setenv("NEO4J_URI", "")

	m, err := NewFromEnv(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.NoError(t, m.Close(context.Background()))
}

func TestNodeRows(t *testing.T) {
	owner := "u1"
	rows, err := NodeRows([]common.GraphNode{
		{ID: "d1", OwnerID: &owner, Label: "d1.pdf", Type: common.NodeTypeDocument, Properties: map[string]any{"priority": 0.5}},
		{ID: "legacy", Label: "Legacy", Type: common.NodeTypeEntity},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "u1", rows[0]["owner_id"])
	assert.JSONEq(t, `{"priority":0.5}`, rows[0]["properties"].(string))

	_, hasOwner := rows[1]["owner_id"]
	assert.False(t, hasOwner)
	assert.Equal(t, "{}", rows[1]["properties"])
}

func TestEdgeRows(t *testing.T) {
	rows := EdgeRows([]common.GraphEdge{{ID: 7, Source: "d1", Target: "u1:issuer:acme", Relation: common.RelationIssuedBy}})
	assert.Equal(t, []map[string]any{{"source": "d1", "target": "u1:issuer:acme", "relation": "ISSUED_BY"}}, rows)
}
