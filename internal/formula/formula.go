// Package formula はKPI計算式の安全な検証・評価を提供する。
//
// サポートする構文:
//   - 四則演算と剰余・べき乗: + - * / % **
//   - 単項の + -
//   - 括弧によるグルーピング
//   - 数値リテラル（整数・小数）
//   - 変数名（snake_caseの識別子）
//
// 関数呼び出しや属性参照などは構文として存在しないため評価できない。
package formula

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrEmptyFormula は計算式が空の場合のエラー。
	ErrEmptyFormula = errors.New("formula cannot be empty")

	// ErrNoVariables は計算式に変数が1つも含まれない場合のエラー。
	ErrNoVariables = errors.New("formula must contain at least one variable")

	// ErrSyntax は計算式の構文が不正な場合のエラー。
	ErrSyntax = errors.New("syntax error")

	// ErrMissingValues は評価時に変数の値が不足している場合のエラー。
	ErrMissingValues = errors.New("missing values for variables")

	// ErrDivisionByZero はゼロ除算のエラー。
	ErrDivisionByZero = errors.New("division by zero")
)

// 変数として扱わない予約語。
var reservedWords = map[string]bool{
	"True": true, "False": true, "None": true,
	"and": true, "or": true, "not": true,
}

// ExtractVariables は計算式に含まれる変数名を出現順・重複なしで返す。
// 構文が不正でも識別子の抽出だけは行う。
func ExtractVariables(input string) []string {
	var vars []string
	seen := map[string]bool{}

	for i := 0; i < len(input); {
		c := input[i]
		if isIdentStart(c) {
			j := i + 1
			for j < len(input) && isIdentPart(input[j]) {
				j++
			}
			name := input[i:j]
			if !reservedWords[name] && !seen[name] {
				seen[name] = true
				vars = append(vars, name)
			}
			i = j
			continue
		}
		i++
	}
	return vars
}

// Validate は計算式の構文と安全性を検証し、必要な入力変数を返す。
func Validate(input string) ([]string, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyFormula
	}

	vars := ExtractVariables(input)
	if len(vars) == 0 {
		return nil, ErrNoVariables
	}

	p := newParser(input)
	if _, err := p.parse(); err != nil {
		return nil, err
	}
	return vars, nil
}

// Evaluate は計算式を変数値で評価する。
func Evaluate(input string, values map[string]float64) (float64, error) {
	vars, err := Validate(input)
	if err != nil {
		return 0, err
	}

	var missing []string
	for _, v := range vars {
		if _, ok := values[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return 0, fmt.Errorf("%w: %s", ErrMissingValues, strings.Join(missing, ", "))
	}

	p := newParser(input)
	root, err := p.parse()
	if err != nil {
		return 0, err
	}

	result, err := root.eval(values)
	if err != nil {
		return 0, err
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return 0, fmt.Errorf("formula did not evaluate to a finite number")
	}
	return result, nil
}

// --- 構文木 ---

type node interface {
	eval(values map[string]float64) (float64, error)
}

type numberNode struct{ value float64 }

func (n numberNode) eval(map[string]float64) (float64, error) { return n.value, nil }

type variableNode struct{ name string }

func (n variableNode) eval(values map[string]float64) (float64, error) {
	return values[n.name], nil
}

type unaryNode struct {
	op      byte
	operand node
}

func (n unaryNode) eval(values map[string]float64) (float64, error) {
	v, err := n.operand.eval(values)
	if err != nil {
		return 0, err
	}
	if n.op == '-' {
		return -v, nil
	}
	return v, nil
}

type binaryNode struct {
	op          string
	left, right node
}

func (n binaryNode) eval(values map[string]float64) (float64, error) {
	left, err := n.left.eval(values)
	if err != nil {
		return 0, err
	}
	right, err := n.right.eval(values)
	if err != nil {
		return 0, err
	}

	switch n.op {
	case "+":
		return left + right, nil
	case "-":
		return left - right, nil
	case "*":
		return left * right, nil
	case "/":
		if right == 0 {
			return 0, ErrDivisionByZero
		}
		return left / right, nil
	case "%":
		if right == 0 {
			return 0, ErrDivisionByZero
		}
		return math.Mod(left, right), nil
	case "**":
		return math.Pow(left, right), nil
	}
	return 0, fmt.Errorf("%w: unknown operator %q", ErrSyntax, n.op)
}

// --- 字句解析 ---

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenIdent
	tokenOp
	tokenLParen
	tokenRParen
	tokenEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			dots := 0
			for j < len(input) && (input[j] >= '0' && input[j] <= '9' || input[j] == '.') {
				if input[j] == '.' {
					dots++
				}
				j++
			}
			if dots > 1 {
				return nil, fmt.Errorf("%w: invalid number at position %d", ErrSyntax, i)
			}
			tokens = append(tokens, token{tokenNumber, input[i:j], i})
			i = j
		case isIdentStart(c):
			j := i + 1
			for j < len(input) && isIdentPart(input[j]) {
				j++
			}
			tokens = append(tokens, token{tokenIdent, input[i:j], i})
			i = j
		case c == '*':
			if i+1 < len(input) && input[i+1] == '*' {
				tokens = append(tokens, token{tokenOp, "**", i})
				i += 2
			} else {
				tokens = append(tokens, token{tokenOp, "*", i})
				i++
			}
		case c == '+' || c == '-' || c == '/' || c == '%':
			tokens = append(tokens, token{tokenOp, string(c), i})
			i++
		case c == '(':
			tokens = append(tokens, token{tokenLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokenRParen, ")", i})
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at position %d", ErrSyntax, string(c), i)
		}
	}
	tokens = append(tokens, token{tokenEOF, "", len(input)})
	return tokens, nil
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

// --- 構文解析（再帰下降） ---
//
// expr   := term (("+" | "-") term)*
// term   := unary (("*" | "/" | "%") unary)*
// unary  := ("+" | "-") unary | power
// power  := atom ("**" unary)?   ← べき乗は右結合
// atom   := number | ident | "(" expr ")"

type parser struct {
	tokens []token
	pos    int
	err    error
}

func newParser(input string) *parser {
	tokens, err := tokenize(input)
	return &parser{tokens: tokens, err: err}
}

func (p *parser) parse() (node, error) {
	if p.err != nil {
		return nil, p.err
	}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, fmt.Errorf("%w: unexpected token %q at position %d", ErrSyntax, tok.text, tok.pos)
	}
	return root, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokenOp || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.text, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokenOp || (tok.text != "*" && tok.text != "/" && tok.text != "%") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.text, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	tok := p.peek()
	if tok.kind == tokenOp && (tok.text == "+" || tok.text == "-") {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: tok.text[0], operand: operand}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (node, error) {
	base, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind == tokenOp && tok.text == "**" {
		p.next()
		// 指数側は単項演算子を許す（例: x ** -2）
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: "**", left: base, right: exp}, nil
	}
	return base, nil
}

func (p *parser) parseAtom() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokenNumber:
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid number %q at position %d", ErrSyntax, tok.text, tok.pos)
		}
		return numberNode{value: v}, nil
	case tokenIdent:
		if reservedWords[tok.text] {
			return nil, fmt.Errorf("%w: reserved keyword %q cannot be used as variable", ErrSyntax, tok.text)
		}
		return variableNode{name: tok.text}, nil
	case tokenLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokenRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis at position %d", ErrSyntax, closing.pos)
		}
		return inner, nil
	case tokenEOF:
		return nil, fmt.Errorf("%w: unexpected end of formula", ErrSyntax)
	default:
		return nil, fmt.Errorf("%w: unexpected token %q at position %d", ErrSyntax, tok.text, tok.pos)
	}
}
