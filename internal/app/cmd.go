package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	// 続く引数に down / version を指定できる。
	CommandMigrate Command = "migrate"
	// CommandReconcile は全セットの収集数を再集計して終了することを示す。
	// cronやKubernetes CronJobからの定期実行を想定する。
	CommandReconcile Command = "reconcile"
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

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "reconcile":
		return CommandReconcile
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// migrateAction はmigrateサブコマンドの動作。
type migrateAction string

const (
	migrateUp      migrateAction = "up"
	migrateDown    migrateAction = "down"
	migrateVersion migrateAction = "version"
)

// parseMigrateAction は migrate に続く引数を解析する。省略時はup。
func parseMigrateAction(args []string) (migrateAction, bool) {
	if len(args) < 2 {
		return migrateUp, true
	}
	switch migrateAction(args[1]) {
	case migrateUp, migrateDown, migrateVersion:
		return migrateAction(args[1]), true
	default:
		return "", false
	}
}
