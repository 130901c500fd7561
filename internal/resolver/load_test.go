package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeSource(t, root, "src/Model.php", `<?php
namespace App;

abstract class Model
{
    /**
     * @param string $key
     * @return mixed
     */
    public function get($key) {}
}
`)
	writeSource(t, root, "src/User.php", `<?php
namespace App;

use JsonSerializable;

class User extends Model implements JsonSerializable
{
    /**
     * @return string
     */
    public function name() {}

    /** @phpconsistent-ignore */
    public function jsonSerialize() {}
}
`)
	writeSource(t, root, "tests/UserTest.php", `<?php
class UserTest { public function testName() {} }
`)

	ix, err := Load(context.Background(), root, Options{SkipTests: true, Workers: 2})
	require.NoError(t, err)

	sig, ok := ix.Resolve(`App\User->get`)
	require.True(t, ok, "inherited method should resolve")
	require.Len(t, sig.Params, 1)
	assert.Equal(t, "$key", sig.Params[0].Name)

	sig, ok = ix.Resolve(`App\User->jsonSerialize`)
	require.True(t, ok)
	assert.True(t, sig.Suppressed)

	h, ok := ix.HierarchyOf(`App\User`)
	require.True(t, ok)
	assert.Equal(t, []string{`App\Model`}, h.Ancestors)
	assert.Equal(t, []string{"JsonSerializable"}, h.Implements)

	_, ok = ix.Resolve("UserTest->testName")
	assert.False(t, ok, "test sources should be skipped")
}

func TestLoadTraitMethods(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeSource(t, root, "src/Counts.php", `<?php
namespace App;

trait Counts
{
    /**
     * @param int $n
     * @return int
     */
    public function bump($n) {}
}
`)
	writeSource(t, root, "src/Cart.php", `<?php
namespace App;

class Cart
{
    use Counts;
}
`)

	ix, err := Load(context.Background(), root, Options{})
	require.NoError(t, err)

	sig, ok := ix.Resolve(`App\Cart->bump`)
	require.True(t, ok, "method from a used trait should resolve on the class")
	require.Len(t, sig.Params, 1)
	assert.Equal(t, "$n", sig.Params[0].Name)
	assert.Equal(t, "int", string(sig.Return))
}

func TestLoadExcludesAndSize(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeSource(t, root, "src/A.php", "<?php function a() {}\n")
	writeSource(t, root, "vendor/B.php", "<?php function b() {}\n")
	writeSource(t, root, "src/Big.php", "<?php function big() {}\n// padding padding padding padding\n")

	ix, err := Load(context.Background(), root, Options{Excludes: []string{"vendor/"}, MaxFileSize: 30})
	require.NoError(t, err)
	_, ok := ix.Resolve("a")
	assert.True(t, ok)
	_, ok = ix.Resolve("b")
	assert.False(t, ok, "excluded file should not be indexed")
	_, ok = ix.Resolve("big")
	assert.False(t, ok, "oversized file should not be indexed")
}

func TestLoadNoSources(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeSource(t, root, "README.md", "nothing here")

	_, err := Load(context.Background(), root, Options{})
	require.ErrorIs(t, err, ErrNoSources)
}

func TestLoadNotADirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeSource(t, root, "file.php", "<?php")

	_, err := Load(context.Background(), filepath.Join(root, "file.php"), Options{})
	require.Error(t, err)
	_, err = Load(context.Background(), filepath.Join(root, "missing"), Options{})
	require.Error(t, err)
}

func TestLoadCanceled(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeSource(t, root, "a.php", "<?php function a() {}\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, root, Options{})
	require.ErrorIs(t, err, context.Canceled)
}
