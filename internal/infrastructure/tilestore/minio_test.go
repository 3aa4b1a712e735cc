package tilestore

import (
	"bytes"
	"testing"

	"elevation_service/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeIsGzipJSON(t *testing.T) {
	tile := model.Tile{
		Key:          model.TileKey{X: -10, Y: 5150},
		Size:         0.01,
		Count:        2,
		MinElevation: 10,
		MaxElevation: 30,
		AvgElevation: 20,
		Points:       [][3]float64{{51.5, -0.1, 10}, {51.505, -0.1, 30}},
	}

	data, err := Encode(tile)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b}, data[:2])

	got, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, tile, got)
}

func TestObjectKey(t *testing.T) {
	tile := model.Tile{Key: model.TileKey{X: -10, Y: 5150}, Size: 0.01}
	assert.Equal(t, "tiles/0.01/-10_5150.json.gz", ObjectKey("tiles", tile))
}
