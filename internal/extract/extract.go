// Package extract は上流サービスのJSONレスポンスから、優先順位付きのルールで値を取り出す。
//
// 生成APIやIdPはベンダーによってレスポンスの形が異なるため、
// 取り出し方をgjsonのパスの並びとして宣言し、先に一致したものを採用する。
package extract

import (
	"github.com/tidwall/gjson"
)

// Rule は1つの取り出しルールを表す。Pathはgjsonのパス記法で指定する。
type Rule struct {
	Name string
	Path string
}

// Match はルールに一致した値を表す。
type Match struct {
	Rule  Rule
	Value string
}

// First はbodyに対してrulesを先頭から順に評価し、最初に空でない文字列値が得られたルールの結果を返す。
// 一致しない場合やbodyが不正なJSONの場合はokがfalseになる。
func First(body []byte, rules ...Rule) (Match, bool) {
	if !gjson.ValidBytes(body) {
		return Match{}, false
	}
	for _, rule := range rules {
		res := gjson.GetBytes(body, rule.Path)
		if res.Type != gjson.String {
			continue
		}
		if res.Str == "" {
			continue
		}
		return Match{Rule: rule, Value: res.Str}, true
	}
	return Match{}, false
}

// String はFirstの簡易版で、最初に一致した文字列を返す。一致しない場合は空文字列を返す。
func String(body []byte, paths ...string) string {
	rules := make([]Rule, len(paths))
	for i, p := range paths {
		rules[i] = Rule{Name: p, Path: p}
	}
	m, _ := First(body, rules...)
	return m.Value
}

// Scalar はpathの値を文字列として返す。数値IDなど文字列以外のスカラー値も文字列化する。
// 値が存在しない、またはオブジェクト・配列の場合は空文字列を返す。
func Scalar(body []byte, paths ...string) string {
	for _, p := range paths {
		res := gjson.GetBytes(body, p)
		switch res.Type {
		case gjson.String, gjson.Number:
			if s := res.String(); s != "" {
				return s
			}
		}
	}
	return ""
}

// Exists はpathに何らかの値（nullを除く）が存在するかどうかを返す。
func Exists(body []byte, path string) bool {
	res := gjson.GetBytes(body, path)
	return res.Exists() && res.Type != gjson.Null
}
