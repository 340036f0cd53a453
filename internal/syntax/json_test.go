package syntax_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenscan/internal/syntax"
)

const javaTree = `{
  "kind": "CtClassImpl", "file": "Main.java", "startLine": 1, "endLine": 12,
  "children": [
    {"kind": "CtForImpl", "startLine": 3, "endLine": 6, "children": [
      {"kind": "CtBinaryOperatorImpl", "operator": "PLUS", "startLine": 4,
       "type": {"name": "String", "qualified": "java.lang.String"}, "snippet": "s + i"},
      {"kind": "CtConstructorCallImpl", "startLine": 5,
       "type": {"name": "FileReader", "qualified": "java.io.FileReader"}}
    ]},
    {"kind": "CtInvocationImpl", "callee": "println", "startLine": 9}
  ]
}`

func TestDecodeJSON(t *testing.T) {
	tree, err := syntax.DecodeJSON(strings.NewReader(javaTree), "upload.java")
	require.NoError(t, err)
	require.NoError(t, tree.Validate())
	require.Equal(t, 5, tree.Len())

	kinds := make([]string, tree.Len())
	for i, n := range tree.Nodes {
		kinds[i] = n.Kind
	}
	assert.Equal(t, []string{
		"CtClassImpl", "CtForImpl", "CtBinaryOperatorImpl", "CtConstructorCallImpl", "CtInvocationImpl",
	}, kinds)

	bin := tree.Nodes[2]
	assert.Equal(t, 1, bin.Parent)
	assert.Equal(t, "Main.java", bin.File, "file inherited from the root")
	assert.Equal(t, 4, bin.EndLine, "end line defaults to start line")
	assert.True(t, bin.Type.Matches("String"))
	assert.True(t, bin.Type.Matches("java.lang.String"))
	assert.False(t, bin.Type.Matches("StringBuilder"))

	assert.Equal(t, 0, tree.Nodes[4].Parent)
	assert.Equal(t, "println", tree.Nodes[4].Callee)
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	_, err := syntax.DecodeJSON(strings.NewReader("not json"), "x")
	assert.Error(t, err)
	_, err = syntax.DecodeJSON(strings.NewReader(`{"children": []}`), "x")
	assert.Error(t, err)
}

func TestExternalProvider(t *testing.T) {
	var got []string
	p := &syntax.ExternalProvider{
		Command:    []string{"java", "-jar", "parser.jar", "--in={{file}}"},
		Extensions: []string{"java"},
		Run: func(_ context.Context, argv []string) ([]byte, error) {
			got = argv
			return []byte(javaTree), nil
		},
	}
	assert.True(t, p.Supports("src/Main.JAVA"))
	assert.False(t, p.Supports("main.go"))

	tree, err := p.Parse(context.Background(), "/work/Main.java")
	require.NoError(t, err)
	assert.Equal(t, []string{"java", "-jar", "parser.jar", "--in=/work/Main.java"}, got)
	assert.Equal(t, 5, tree.Len())
}

func TestExternalProviderAppendsPathAndWrapsErrors(t *testing.T) {
	var got []string
	p := &syntax.ExternalProvider{
		Command: []string{"parse"},
		Run: func(_ context.Context, argv []string) ([]byte, error) {
			got = argv
			return nil, errors.New("exit status 2")
		},
	}
	_, err := p.Parse(context.Background(), "A.java")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 2")
	assert.Equal(t, []string{"parse", "A.java"}, got)
}
