package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// invalidTextRepresentation 不正なUUID文字列などで返されるPostgreSQLのエラーコード
const invalidTextRepresentation = "22P02"

// isInvalidID 不正なID文字列によるエラーかどうか
func isInvalidID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation
}

// sqlBuilder プレースホルダ番号を管理しながらWHERE句を組み立てる
type sqlBuilder struct {
	clauses []string
	args    []interface{}
}

// arg 値を追加して "$n" を返す
func (b *sqlBuilder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *sqlBuilder) where(clause string) {
	b.clauses = append(b.clauses, clause)
}

// whereAnyILike いずれかの式が value を部分一致（大文字小文字無視）で含む
func (b *sqlBuilder) whereAnyILike(exprs []string, value string) {
	if value == "" || len(exprs) == 0 {
		return
	}
	placeholder := b.arg(ilikePattern(value))
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e + " ILIKE " + placeholder
	}
	b.where("(" + strings.Join(parts, " OR ") + ")")
}

// whereSQL " WHERE a AND b"（条件がなければ空文字列）
func (b *sqlBuilder) whereSQL() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.clauses, " AND ")
}

// ilikePattern ワイルドカード文字をエスケープした "%value%"
func ilikePattern(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
	return "%" + escaped + "%"
}

// propertyTextExprs jsonb 属性をテキストとして取り出す式の一覧
func propertyTextExprs(column string, keys []string) []string {
	exprs := make([]string, len(keys))
	for i, k := range keys {
		exprs[i] = fmt.Sprintf("%s->>%s", column, pq.QuoteLiteral(k))
	}
	return exprs
}

// propertyCoalesceExpr キー表記ゆれのうち最初に値を持つものを返す式
func propertyCoalesceExpr(column string, keys []string) string {
	exprs := propertyTextExprs(column, keys)
	for i, e := range exprs {
		exprs[i] = "NULLIF(" + e + ", '')"
	}
	return "COALESCE(" + strings.Join(exprs, ", ") + ")"
}
