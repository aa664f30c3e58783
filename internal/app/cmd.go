package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は運用APIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は全ジョブを定期実行するワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandIngest はフィード取り込みを1回実行して終了することを示す。
	CommandIngest Command = "ingest"
	// CommandDigest はダイジェスト配信を1回実行して終了することを示す。
	CommandDigest Command = "digest"
	// CommandCleanup は古い記事の削除を1回実行して終了することを示す。
	CommandCleanup Command = "cleanup"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch cmd := Command(args[0]); cmd {
	case CommandServe, CommandWorker, CommandIngest, CommandDigest,
		CommandCleanup, CommandMigrate, CommandHealthcheck:
		return cmd
	default:
		return CommandServe
	}
}

// IsOneShot はジョブを1回実行して終了するコマンドかを返す。
func (c Command) IsOneShot() bool {
	return c == CommandIngest || c == CommandDigest || c == CommandCleanup
}
