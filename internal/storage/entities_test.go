package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProductPatchApply(t *testing.T) {
	p := Product{Name: "lamp", Description: "old", Price: 500, Status: StatusSelling}

	patch := ProductPatch{
		Description: Some(""),
		Price:       Some(int64(0)),
	}
	require.False(t, patch.Empty())

	patch.Apply(&p)
	require.Equal(t, "lamp", p.Name)
	require.Equal(t, "", p.Description)
	require.Equal(t, int64(0), p.Price)
	require.Equal(t, StatusSelling, p.Status)
}

func TestProductPatchEmpty(t *testing.T) {
	require.True(t, ProductPatch{}.Empty())

	var name Optional[string]
	_, ok := name.Get()
	require.False(t, ok)
}
