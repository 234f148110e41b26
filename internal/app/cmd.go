package app

import "fmt"

// Command はgreetcardのサブコマンド。
type Command string

const (
	CommandServe       Command = "serve"       // APIサーバー（既定）
	CommandMigrate     Command = "migrate"     // スキーマのマイグレーション
	CommandHealthcheck Command = "healthcheck" // distrolessイメージのHEALTHCHECK用
)

var commands = []Command{CommandServe, CommandMigrate, CommandHealthcheck}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数がなければserve。未知の名前はエラーにし、打ち間違いでサーバーが起動しないようにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	for _, c := range commands {
		if args[0] == string(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q (want one of %v)", args[0], commands)
}
