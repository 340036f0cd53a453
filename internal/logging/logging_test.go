package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestInitJSONWithComponentAndFile(t *testing.T) {
	var buf bytes.Buffer
	orig := stderr
	stderr = &buf
	t.Cleanup(func() {
		stderr = orig
		Shutdown()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	path := filepath.Join(t.TempDir(), "logs", "greenscan.log")
	Init(Config{Format: "json", Level: "debug", Component: "test", FilePath: path})

	ctx := WithJob(context.Background(), "job-1")
	FromContext(ctx).Debug().Msg("hello")
	log.Info().Msg("plain")

	out := buf.String()
	assert.Contains(t, out, `"component":"test"`)
	assert.Contains(t, out, `"job":"job-1"`)
	assert.Contains(t, out, `"message":"hello"`)
	assert.Equal(t, 2, strings.Count(out, "\n"))

	Shutdown()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
}

func TestSelectWriterAutoNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	orig := stderr
	stderr = &buf
	t.Cleanup(func() { stderr = orig })

	w := selectWriter("auto")
	assert.Equal(t, &buf, w)
	_, console := selectWriter("console").(zerolog.ConsoleWriter)
	assert.True(t, console)
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
}
