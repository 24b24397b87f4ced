package irtext

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// irLexer tokenizes the textual IR. Order matters: Kind and BlockLabel must come before Ident, Float before Int.
var irLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "ValueRef", Pattern: `%[a-zA-Z0-9_.]+`},
	{Name: "Kind", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*::[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "BlockLabel", Pattern: `block[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Float", Pattern: `-?[0-9]+\.[0-9]*([eE][-+]?[0-9]+)?|-?[0-9]+[eE][-+]?[0-9]+`},
	{Name: "Int", Pattern: `-?[0-9]+`},
	{Name: "Arrow", Pattern: `->`},
	{Name: "Punct", Pattern: `[()\[\]{},:=?*<>]`},
})

var irParser = participle.MustBuild[graphExpr](
	participle.Lexer(irLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(3),
)

type graphExpr struct {
	Pos     lexer.Position
	Inputs  []*typedValueExpr `"graph" "(" ( @@ ( "," @@ )* )? ")" ":"`
	Nodes   []*nodeExpr       `@@*`
	Returns []string          `"return" "(" ( @ValueRef ( "," @ValueRef )* )? ")"`
}

type typedValueExpr struct {
	Pos  lexer.Position
	Name string    `@ValueRef ":"`
	Type *typeExpr `@@`
}

type nodeExpr struct {
	Pos        lexer.Position
	Outputs    []*typedValueExpr `( @@ ( "," @@ )* )? "="`
	Kind       string            `@Kind`
	Attributes []*attributeExpr  `( "[" ( @@ ( "," @@ )* )? "]" )?`
	Inputs     []string          `"(" ( @ValueRef ( "," @ValueRef )* )? ")"`
	Blocks     []*blockExpr      `@@*`
}

type blockExpr struct {
	Pos     lexer.Position
	Label   string            `@BlockLabel`
	Inputs  []*typedValueExpr `"(" ( @@ ( "," @@ )* )? ")" ":"`
	Nodes   []*nodeExpr       `@@*`
	Returns []string          `Arrow "(" ( @ValueRef ( "," @ValueRef )* )? ")"`
}

type attributeExpr struct {
	Pos   lexer.Position
	Name  string         `@Ident "="`
	Value *attrValueExpr `@@`
}

type attrValueExpr struct {
	Number *numberExpr `  @@`
	String *string     `| @String`
	List   *listExpr   `| @@`
	Tensor *tensorExpr `| "{" @@ "}"`
	Graph  bool        `| @( "<" "Graph" ">" )`
}

type listExpr struct {
	Items []*numberExpr `"[" ( @@ ( "," @@ )* )? "]"`
}

type tensorExpr struct {
	Scalar *numberExpr `  @@`
	List   *listExpr   `| @@`
}

// numberExpr keeps the literal text, so ints and floats are told apart by the token type.
type numberExpr struct {
	Float string `  @Float`
	Int   string `| @Int`
}

// typeExpr is a base type followed by any number of "?" (optional) and "[]" (list) suffixes.
type typeExpr struct {
	Pos      lexer.Position
	Tuple    []*typeExpr `(  "(" @@ ( "," @@ )* ")"`
	Name     string      `   | @Ident )`
	Shape    *shapeExpr  `@@?`
	Suffixes []string    `( @"?" | @"[" "]" )*`
}

type shapeExpr struct {
	Unranked bool       `"(" ( @"*"`
	Dims     []*dimExpr `    | @@ ( "," @@ )* )? ")"`
}

type dimExpr struct {
	Unknown bool   `  @"?"`
	Size    string `| @Int`
}
