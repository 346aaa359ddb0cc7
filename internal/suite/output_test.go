package suite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenflood/internal/config"
)

func TestRunFolder(t *testing.T) {
	ep := config.Endpoint{Provider: "openai", Model: "gpt-4o-mini"}

	got := RunFolder("results", ep, epoch)

	assert.Equal(t, filepath.Join("results", "2025-01-01_00-00-00_"+ep.FolderName()), got)
}

func TestPrepareRunFolder(t *testing.T) {
	base := t.TempDir()
	ep := config.StarterEndpoint()
	s := config.StarterRunSuite()

	dir, err := PrepareRunFolder(base, ep, epoch,
		SpecFile{Name: config.RunSuiteFile, Spec: s},
		SpecFile{Name: config.EndpointFile, Spec: ep},
	)
	require.NoError(t, err)
	assert.Equal(t, RunFolder(base, ep, epoch), dir)

	loadedSuite, err := config.LoadRunSuite(filepath.Join(dir, config.RunSuiteFile))
	require.NoError(t, err)
	assert.Equal(t, s.Name, loadedSuite.Name)
	assert.Equal(t, s.RequestsPerSecondRates, loadedSuite.RequestsPerSecondRates)

	loadedEndpoint, err := config.LoadEndpoint(filepath.Join(dir, config.EndpointFile))
	require.NoError(t, err)
	assert.Equal(t, ep.ProviderModel(), loadedEndpoint.ProviderModel())
	assert.Equal(t, ep.BaseURL, loadedEndpoint.BaseURL)
}

func TestPrepareRunFolder_ExistingFolder(t *testing.T) {
	base := t.TempDir()
	ep := config.StarterEndpoint()

	_, err := PrepareRunFolder(base, ep, epoch)
	require.NoError(t, err)
	_, err = PrepareRunFolder(base, ep, epoch)
	assert.NoError(t, err)
}
