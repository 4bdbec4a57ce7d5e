package langdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cognicore/tidings/pkg/tidings/stoplist"
)

func TestDetectTrigram(t *testing.T) {
	d := New(nil, Options{})

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "english",
			text: "A new ransomware strain breached three hospitals in the region over the weekend, officials said on Monday.",
			want: "en",
		},
		{
			name: "german",
			text: "Ein Hackerangriff hat am Wochenende die Computersysteme mehrerer Krankenhäuser in der Region lahmgelegt.",
			want: "de",
		},
		{
			name: "russian",
			text: "Хакеры атаковали компьютерные системы нескольких больниц в регионе в выходные, сообщили официальные лица.",
			want: "ru",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.text)
			assert.Equal(t, tt.want, got.Code)
			assert.Greater(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestDetectFallsBackToStopwords(t *testing.T) {
	d := New(stoplist.NewManager(nil), Options{})

	got := d.Detect("and the hack")
	assert.Equal(t, "en", got.Code)
	assert.Equal(t, MethodStopword, got.Method)
	assert.InDelta(t, 2.0/3.0, got.Confidence, 1e-9)
}

func TestDetectUnknown(t *testing.T) {
	d := New(nil, Options{})

	for _, text := range []string{"", "   \n\t", "12345 67890"} {
		got := d.Detect(text)
		assert.Equal(t, Unknown, got.Code, "%q", text)
		assert.Zero(t, got.Confidence)
		assert.Equal(t, MethodNone, got.Method)
	}
}

func TestDetectDeterministic(t *testing.T) {
	d := New(nil, Options{})
	text := "Die Regierung kündigte neue Maßnahmen gegen Cyberangriffe auf kritische Infrastruktur an."

	first := d.Detect(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, d.Detect(text))
	}
}
