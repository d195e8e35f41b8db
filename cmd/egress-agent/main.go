// egress-agent — агент, выполняющий операции backend'а в сети клиента.
//
// Использование:
//
//	egress-agent [--backend-url URL] [--json] <command> [flags]
//
// Команды:
//
//	run           Запуск агента
//	health        Health-информация
//	reachability  Проверка связи с backend'ом
//	config        Runtime-конфигурация
//	events        Очередь событий AMQP
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/egress-agent/internal/cli"
)

func main() {
	settings := cli.DefaultSettings()
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "egress-agent",
		Short:         "Egress agent: executes backend operations inside the customer network",
		Version:       cli.Version + " (build " + cli.Build + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	settings.BindFlags(rootCmd)
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(&settings),
		cli.NewHealthCmd(&settings, outputFn),
		cli.NewReachabilityCmd(&settings, outputFn),
		cli.NewConfigCmd(&settings, outputFn),
		cli.NewEventsCmd(&settings, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, cli.ErrRestartRequested) {
			os.Exit(cli.RestartExitCode)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
