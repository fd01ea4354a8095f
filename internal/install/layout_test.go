package install

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
)

func TestDefaultLayout(t *testing.T) {
	layout := DefaultLayout("/usr/local")

	assert.Equal(t, Layout{
		manifest.KindBinary:         "/usr/local/bin",
		manifest.KindManPage:        "/usr/local/share/man/man1",
		manifest.KindCompletionBash: "/usr/local/share/bash-completion/completions",
		manifest.KindCompletionZsh:  "/usr/local/share/zsh/site-functions",
		manifest.KindCompletionFish: "/usr/local/share/fish/vendor_completions.d",
	}, layout)
	assert.NoError(t, layout.Validate())
}

func TestLayout_Validate(t *testing.T) {
	tests := []struct {
		name    string
		layout  Layout
		wantErr string
	}{
		{
			name:    "relative_dir",
			layout:  DefaultLayout("/p").Merge(map[manifest.DestinationKind]string{manifest.KindBinary: "bin"}),
			wantErr: "must be absolute",
		},
		{
			name: "missing_kind",
			layout: func() Layout {
				l := DefaultLayout("/p")
				delete(l, manifest.KindCompletionFish)
				return l
			}(),
			wantErr: "completion_fish",
		},
		{
			name: "unknown_kind",
			layout: func() Layout {
				l := DefaultLayout("/p")
				l["info_page"] = "/p/share/info"
				return l
			}(),
			wantErr: "unknown destination kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, tt.layout.Validate(), tt.wantErr)
		})
	}
}

func TestLayout_MergeAndDestination(t *testing.T) {
	base := DefaultLayout("/usr/local")
	layout := base.Merge(map[manifest.DestinationKind]string{
		manifest.KindBinary:  "/opt/bin",
		manifest.KindManPage: "",
	})

	assert.Equal(t, "/usr/local/bin", base[manifest.KindBinary], "Merge must not modify its receiver")
	assert.Equal(t, "/usr/local/share/man/man1", layout[manifest.KindManPage], "empty overrides are ignored")

	dest, err := layout.Destination(manifest.InstallRule{From: "target/multi-query", Kind: manifest.KindBinary})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/opt/bin", "multi-query"), dest)

	dest, err = layout.Destination(manifest.InstallRule{From: "complete/multi-query.bash", Kind: manifest.KindCompletionBash, As: "multi-query"})
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/share/bash-completion/completions/multi-query", dest)

	_, err = Layout{}.Destination(manifest.InstallRule{From: "x", Kind: manifest.KindBinary})
	assert.Error(t, err)
}
