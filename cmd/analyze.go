package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hildam/deep-dive-go/biz/service"
	"github.com/hildam/deep-dive-go/repo/event"
)

func analyzeCMD(cfgPath *string) *cobra.Command {
	var workflowID string
	cmd := &cobra.Command{
		Use:   "analyze [objective]",
		Short: "Run the financial analysis workflow in the console",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := event.WithSink(cmd.Context(), event.SinkFunc(printEvent))
			a, err := newApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			objective := strings.Join(args, " ")
			if objective == "" {
				fmt.Print("请输入你的需求： ")
				objective, _ = bufio.NewReader(os.Stdin).ReadString('\n')
			}
			objective = strings.TrimSpace(objective)

			wf, _, err := a.workflow.Prepare(ctx, service.RunRequest{
				WorkflowID: workflowID,
				Message:    objective,
				UserID:     consoleUser,
			})
			if err != nil {
				return err
			}
			if err := a.workflow.Run(ctx, wf, objective); err != nil {
				return err
			}
			fmt.Println(wf.Messages[len(wf.Messages)-1].Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow", "", "continue an existing workflow")
	return cmd
}
