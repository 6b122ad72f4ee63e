package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Estetoscópio Digital", "estetoscopio digital"},
		{"AUTOCLAVE", "autoclave"},
		{"Licitação ÇÃO", "licitacao cao"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Fold(tt.in))
		})
	}
}

func TestContainsFolded(t *testing.T) {
	assert.True(t, ContainsFolded("Autoclave Hospitalar", "autoclave"))
	assert.True(t, ContainsFolded("Autoclave Hospitalar", "AUTOCLAVE"))
	assert.True(t, ContainsFolded("Estetoscópio Digital", "estetoscopio"))
	assert.True(t, ContainsFolded("Estetoscopio Digital", "ESTETOSCÓPIO"))
	assert.False(t, ContainsFolded("Seringa descartável", "autoclave"))
	assert.False(t, ContainsFolded("anything", ""))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Aquisição de luvas & máscaras", Sanitize("  <p>Aquisição de <b>luvas</b> &amp; máscaras</p>\n"))
	assert.Equal(t, "sem marcação", Sanitize("sem   marcação"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "ação", Truncate("ação pública", 4))
	assert.Equal(t, "curto", Truncate("curto", 140))
	assert.Equal(t, "", Truncate("abc", 0))
}

func TestHTMLToText(t *testing.T) {
	page := "<html><head><title>Erro</title></head><body>\n<h1>502 Bad Gateway</h1>\n<script>var x = 1;</script>\n<p>nginx</p>\n</body></html>"
	assert.Equal(t, "Erro 502 Bad Gateway nginx", HTMLToText(page))
}
