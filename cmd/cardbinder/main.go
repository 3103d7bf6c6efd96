// Command cardbinder はカードコレクション管理APIのエントリーポイント。
//
//	cardbinder [serve]            APIサーバーを起動する
//	cardbinder migrate [up|down|version]
//	cardbinder reconcile          収集数を再集計して終了する
//	cardbinder healthcheck        /health を確認する（Docker用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/cardbinder/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "cardbinder: %v\n", err)
		os.Exit(1)
	}
}
