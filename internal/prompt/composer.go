// Package prompt は画像生成APIに送るプロンプトを組み立てる。
package prompt

import (
	"fmt"
	"math/rand"
	"time"
)

// StylePool は画風の修飾語の候補。
var StylePool = []string{
	"traditional Chinese ink painting",
	"paper-cut art",
	"gongbi fine brushwork",
	"watercolor illustration",
	"woodblock print",
	"golden foil embossing",
	"modern flat illustration",
}

// MoodPool は雰囲気の修飾語の候補。
var MoodPool = []string{
	"warm and joyful",
	"grand and auspicious",
	"peaceful and serene",
	"lively and bustling",
	"elegant and refined",
	"dreamy and poetic",
}

// DetailPool は構図・モチーフの修飾語の候補。
var DetailPool = []string{
	"plum blossoms in the foreground",
	"fireworks over a night sky",
	"a pair of red lanterns framing the scene",
	"auspicious clouds and a rising sun",
	"koi fish swirling in a pond",
	"snow-covered rooftops with spring couplets",
	"a golden dragon among clouds",
}

// Composer はベースプロンプトに修飾語とシード値を付け足してプロンプトを多様化する。
// 乱数と時刻は差し替え可能で、固定すると出力は決定的になる。
type Composer struct {
	intn func(n int) int
	now  func() time.Time
}

// NewComposer はmath/randと現在時刻を使うComposerを生成する。
func NewComposer() *Composer {
	return &Composer{intn: rand.Intn, now: time.Now}
}

// NewComposerWith は乱数関数と時刻関数を指定してComposerを生成する。
func NewComposerWith(intn func(n int) int, now func() time.Time) *Composer {
	return &Composer{intn: intn, now: now}
}

// Compose は "base, style, mood, detail, seed:<token>" の形式のプロンプトを返す。
// tokenは現在時刻のUnixミリ秒。
func (c *Composer) Compose(base string) string {
	style := StylePool[c.intn(len(StylePool))]
	mood := MoodPool[c.intn(len(MoodPool))]
	detail := DetailPool[c.intn(len(DetailPool))]
	return fmt.Sprintf("%s, %s, %s, %s, seed:%d", base, style, mood, detail, c.now().UnixMilli())
}
