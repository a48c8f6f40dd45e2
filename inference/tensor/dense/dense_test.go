package dense

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gtensor "gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/inference/tensor"
)

func TestFromDense(t *testing.T) {
	d := gtensor.New(gtensor.WithShape(2, 4), gtensor.WithBacking([]float32{
		0.3, 0.3, 0.1, 0.1,
		0.6, 0.6, 0.5, 0.5,
	}))

	tt, err := FromDense("coordinates", d)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, tt.Shape())
	assert.InDelta(t, 0.6, tt.At(1, 0), 1e-6)
	assert.InDelta(t, 0.1, tt.At(0, 3), 1e-6)

	f64 := gtensor.New(gtensor.WithShape(3), gtensor.WithBacking([]float64{0.5, 0.02, 0.7}))
	conf, err := FromDense("confidence", f64)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float64, conf.DataType())
	assert.Equal(t, 0.02, conf.At(1))

	ints := gtensor.New(gtensor.WithShape(2), gtensor.WithBacking([]int{1, 2}))
	_, err = FromDense("ints", ints)
	assert.Error(t, err)

	_, err = FromDense("nil", nil)
	assert.Error(t, err)
}

// The reader and decoder packages stay free of gorgonia so they load on
// runtimes its transitive dependencies do not support.
func TestCorePackagesAvoidGorgonia(t *testing.T) {
	for _, dir := range []string{"..", filepath.Join("..", "..", "..", "models", "postprocess")} {
		pkgs, err := parser.ParseDir(token.NewFileSet(), dir, nil, parser.ImportsOnly)
		require.NoError(t, err)
		require.NotEmpty(t, pkgs)
		for _, pkg := range pkgs {
			for name, f := range pkg.Files {
				for _, imp := range f.Imports {
					path, err := strconv.Unquote(imp.Path.Value)
					require.NoError(t, err)
					assert.NotContains(t, path, "gorgonia.org", name)
				}
			}
		}
	}
}
