package syntax

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/packages"
)

// snippetLimit caps the source excerpt attached to a node.
const snippetLimit = 160

// GoProvider parses Go source files. With Types set it loads the enclosing
// package through go/packages so result and constructed types are resolved;
// otherwise, or when loading fails, it falls back to go/parser alone and
// infers what it can from literals and type expressions.
type GoProvider struct {
	Types bool
}

func (g *GoProvider) Name() string { return "go" }

func (g *GoProvider) Supports(path string) bool {
	return filepath.Ext(path) == ".go"
}

// Parse builds the tree for a single .go file.
func (g *GoProvider) Parse(ctx context.Context, path string) (*Tree, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("go: read: %w", err)
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("go: parse: %w", err)
	}

	var info *types.Info
	if g.Types {
		if f, tf, ti, ok := loadTyped(ctx, path); ok {
			file, fset, info = f, tf, ti
		}
	}

	b := &goBuilder{
		fset:  fset,
		src:   src,
		path:  path,
		info:  info,
		tree:  &Tree{File: path},
		stack: []int{},
	}
	ast.Inspect(file, b.visit)
	return b.tree, nil
}

// loadTyped loads the package containing path and returns its typed syntax
// for that file. ok is false when the package cannot be loaded cleanly.
func loadTyped(ctx context.Context, path string) (*ast.File, *token.FileSet, *types.Info, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, nil, false
	}
	fset := token.NewFileSet()
	cfg := &packages.Config{
		Context: ctx,
		Mode: packages.NeedSyntax |
			packages.NeedTypes |
			packages.NeedTypesInfo |
			packages.NeedImports,
		Dir:  filepath.Dir(abs),
		Fset: fset,
	}
	pkgs, err := packages.Load(cfg, "file="+abs)
	if err != nil || len(pkgs) == 0 {
		return nil, nil, nil, false
	}
	pkg := pkgs[0]
	if pkg.TypesInfo == nil || pkg.Types == nil {
		return nil, nil, nil, false
	}
	for _, f := range pkg.Syntax {
		if fset.Position(f.Pos()).Filename == abs {
			return f, fset, pkg.TypesInfo, true
		}
	}
	return nil, nil, nil, false
}

// goBuilder appends nodes in ast.Inspect order, which is pre-order.
type goBuilder struct {
	fset  *token.FileSet
	src   []byte
	path  string
	info  *types.Info
	tree  *Tree
	stack []int
}

func (b *goBuilder) visit(n ast.Node) bool {
	if n == nil {
		b.stack = b.stack[:len(b.stack)-1]
		return true
	}
	parent := NoParent
	if len(b.stack) > 0 {
		parent = b.stack[len(b.stack)-1]
	}

	node := Node{
		Kind:      goKind(n),
		File:      b.path,
		StartLine: b.fset.Position(n.Pos()).Line,
		EndLine:   b.fset.Position(n.End()).Line,
	}
	switch x := n.(type) {
	case *ast.BinaryExpr:
		node.Operator = x.Op.String()
		node.Type = b.exprType(x, x.X, x.Y)
		node.Snippet = b.snippet(n)
	case *ast.AssignStmt:
		if op, ok := compoundOp(x.Tok); ok && len(x.Lhs) == 1 && len(x.Rhs) == 1 {
			node.Kind = "BinaryExpr"
			node.Operator = op
			node.Type = b.exprType(x.Lhs[0], x.Lhs[0], x.Rhs[0])
			node.Snippet = b.snippet(n)
		}
	case *ast.CompositeLit:
		node.Type = b.litType(x)
		node.Snippet = b.snippet(n)
	case *ast.CallExpr:
		node.Callee = calleeName(x.Fun)
		if isAllocation(x) {
			node.Kind = "NewExpr"
			node.Type = b.typeOfTypeExpr(x.Args[0])
		} else if b.info != nil {
			node.Type = b.typeRef(b.info.TypeOf(x))
		}
		node.Snippet = b.snippet(n)
	}

	id := b.tree.Add(parent, node)
	b.stack = append(b.stack, id)
	return true
}

// goKind names a node after its go/ast type, with two loop spellings
// adjusted: a condition-only for is a while loop, a range is RangeStmt.
func goKind(n ast.Node) string {
	if f, ok := n.(*ast.ForStmt); ok && f.Init == nil && f.Post == nil {
		return "WhileStmt"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", n), "*ast.")
}

func compoundOp(tok token.Token) (string, bool) {
	switch tok {
	case token.ADD_ASSIGN:
		return "+", true
	case token.SUB_ASSIGN:
		return "-", true
	case token.MUL_ASSIGN:
		return "*", true
	case token.QUO_ASSIGN:
		return "/", true
	case token.REM_ASSIGN:
		return "%", true
	}
	return "", false
}

// isAllocation reports calls to the new and make builtins.
func isAllocation(call *ast.CallExpr) bool {
	id, ok := call.Fun.(*ast.Ident)
	if !ok || len(call.Args) == 0 {
		return false
	}
	return id.Name == "new" || id.Name == "make"
}

func calleeName(fun ast.Expr) string {
	switch f := fun.(type) {
	case *ast.Ident:
		return f.Name
	case *ast.SelectorExpr:
		return f.Sel.Name
	case *ast.IndexExpr:
		return calleeName(f.X)
	case *ast.IndexListExpr:
		return calleeName(f.X)
	case *ast.ParenExpr:
		return calleeName(f.X)
	}
	return ""
}

// exprType resolves the result type of e. Without type information a string
// literal among the operands marks the expression as a string.
func (b *goBuilder) exprType(e ast.Expr, operands ...ast.Expr) TypeRef {
	if b.info != nil {
		if t := b.info.TypeOf(e); t != nil {
			return b.typeRef(t)
		}
	}
	for _, o := range operands {
		if isStringExpr(o) {
			return TypeRef{Name: "string", Qualified: "string"}
		}
	}
	return TypeRef{}
}

// isStringExpr reports a string literal, or a concatenation containing one.
func isStringExpr(e ast.Expr) bool {
	switch x := ast.Unparen(e).(type) {
	case *ast.BasicLit:
		return x.Kind == token.STRING
	case *ast.BinaryExpr:
		return x.Op == token.ADD && (isStringExpr(x.X) || isStringExpr(x.Y))
	}
	return false
}

func (b *goBuilder) litType(lit *ast.CompositeLit) TypeRef {
	if b.info != nil {
		if t := b.info.TypeOf(lit); t != nil {
			return b.typeRef(t)
		}
	}
	if lit.Type == nil {
		return TypeRef{}
	}
	return refFromExpr(lit.Type)
}

func (b *goBuilder) typeOfTypeExpr(e ast.Expr) TypeRef {
	if b.info != nil {
		if t := b.info.TypeOf(e); t != nil {
			return b.typeRef(t)
		}
	}
	return refFromExpr(e)
}

// typeRef spells t with import paths as qualifiers, and the bare object name
// as its simple form.
func (b *goBuilder) typeRef(t types.Type) TypeRef {
	if t == nil {
		return TypeRef{}
	}
	qualified := types.TypeString(t, func(p *types.Package) string { return p.Path() })
	for {
		p, ok := t.(*types.Pointer)
		if !ok {
			break
		}
		t = p.Elem()
	}
	name := types.TypeString(t, func(*types.Package) string { return "" })
	if named, ok := t.(*types.Named); ok {
		name = named.Obj().Name()
	}
	return TypeRef{Name: name, Qualified: qualified}
}

// refFromExpr derives a type reference from source text: "bytes.Buffer"
// yields simple name "Buffer".
func refFromExpr(e ast.Expr) TypeRef {
	qualified := types.ExprString(e)
	name := strings.TrimLeft(qualified, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return TypeRef{Name: name, Qualified: qualified}
}

// snippet returns the node's source with whitespace collapsed.
func (b *goBuilder) snippet(n ast.Node) string {
	start := b.fset.Position(n.Pos()).Offset
	end := b.fset.Position(n.End()).Offset
	if start < 0 || end > len(b.src) || start >= end {
		return ""
	}
	s := strings.Join(strings.Fields(string(b.src[start:end])), " ")
	if len(s) > snippetLimit {
		s = s[:snippetLimit] + "..."
	}
	return s
}

// ErrorLine returns the line of the first positioned syntax error in err, or
// -1 when err carries no position.
func ErrorLine(err error) int {
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return list[0].Pos.Line
	}
	var one *scanner.Error
	if errors.As(err, &one) {
		return one.Pos.Line
	}
	return -1
}
