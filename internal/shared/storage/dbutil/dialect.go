// Package dbutil 提供数据库方言抽象和工具函数
//
// 通过 Dialect 接口屏蔽不同数据库（PostgreSQL、SQLite）的 SQL 差异，
// 使 repository 层可以编写与数据库无关的业务逻辑。
package dbutil

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// DriverType 数据库驱动类型
type DriverType string

const (
	DriverPostgres DriverType = "postgres"
	DriverSQLite   DriverType = "sqlite"
)

// Dialect 数据库方言接口
//
// 不同数据库的 SQL 语法差异通过该接口屏蔽：
//   - 占位符：PostgreSQL 用 $1, $2；SQLite 用 ?
//   - 布尔值：PostgreSQL 用 TRUE/FALSE；SQLite 用 1/0
//   - 唯一约束冲突的错误类型各不相同
type Dialect interface {
	// DriverType 返回驱动类型标识
	DriverType() DriverType

	// Rebind 将 PostgreSQL 风格的占位符 ($1, $2, ...) 转换为目标数据库的占位符格式
	Rebind(query string) string

	// BooleanLiteral 返回布尔字面量
	BooleanLiteral(b bool) string

	// IsUniqueViolation 判断错误是否为唯一约束冲突
	IsUniqueViolation(err error) bool

	// AutoMigrate 自动创建/迁移数据库 Schema
	AutoMigrate(db *sql.DB) error
}

// pgPlaceholderRe 匹配 PostgreSQL 风格占位符 $1, $2, ...
var pgPlaceholderRe = regexp.MustCompile(`\$(\d+)`)

// pgCastRe 匹配 PostgreSQL 类型转换 ::type
var pgCastRe = regexp.MustCompile(`::(\w+)`)

// RebindToPositional 保持 $N 占位符不变（PostgreSQL 专用）
func RebindToPositional(query string) string {
	return query
}

// RebindToQuestion 将 $N 占位符转换为 ? （SQLite 专用）
//
// 要求占位符按出现顺序编号，repository 层的 Where 构造器保证这一点。
func RebindToQuestion(query string) string {
	return pgPlaceholderRe.ReplaceAllString(query, "?")
}

// StripPgCasts 去除 PostgreSQL 类型转换 (::varchar, ::text 等)
func StripPgCasts(query string) string {
	return pgCastRe.ReplaceAllString(query, "")
}

// ============================================================================
// Where 动态条件构造
// ============================================================================

// Where 动态 WHERE 条件构造器
//
// 条件表达式中的 "?" 按追加顺序替换为 $N，随后由 Dialect.Rebind 转换。
type Where struct {
	conds []string
	args  []interface{}
}

// Add 追加条件，expr 中每个 "?" 对应 vals 中的一个参数
func (w *Where) Add(expr string, vals ...interface{}) {
	var b strings.Builder
	vi := 0
	for _, r := range expr {
		if r == '?' && vi < len(vals) {
			w.args = append(w.args, vals[vi])
			vi++
			fmt.Fprintf(&b, "$%d", len(w.args))
			continue
		}
		b.WriteRune(r)
	}
	w.conds = append(w.conds, b.String())
}

// In 追加 IN 条件；values 为空时追加恒假条件
func (w *Where) In(column string, values []string) {
	if len(values) == 0 {
		w.conds = append(w.conds, "1 = 0")
		return
	}
	marks := make([]string, len(values))
	vals := make([]interface{}, len(values))
	for i, v := range values {
		marks[i] = "?"
		vals[i] = v
	}
	w.Add(fmt.Sprintf("%s IN (%s)", column, strings.Join(marks, ", ")), vals...)
}

// Clause 返回 " WHERE ..." 子句（无条件时为空串）
func (w *Where) Clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Args 返回参数列表
func (w *Where) Args() []interface{} {
	return w.args
}

// NextPlaceholder 返回下一个可用占位符（用于追加 LIMIT/OFFSET）
func (w *Where) NextPlaceholder(v interface{}) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

// LikePattern 构造大小写不敏感的子串匹配模式，转义 LIKE 通配符
//
// 配合 `LOWER(col) LIKE ? ESCAPE '\'` 使用。
func LikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}
