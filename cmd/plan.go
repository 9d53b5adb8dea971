package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/spf13/cobra"

	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/event"
)

// consoleUser 控制台运行使用的用户
const consoleUser = "console"

func planCMD(cfgPath *string) *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "plan [topic]",
		Short: "Run a deep research report in the console with interactive plan review",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := event.WithSink(cmd.Context(), event.SinkFunc(printEvent))
			a, err := newApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			// 读取用户终端输入
			reader := bufio.NewReader(os.Stdin)
			topic := strings.Join(args, " ")
			if topic == "" {
				fmt.Print("请输入研究主题： ")
				topic, _ = reader.ReadString('\n')
			}

			res, err := a.research.StartPlanner(ctx, consoleUser, projectID, topic)
			if err != nil {
				return err
			}
			for res.Type == model.ResultPlan {
				printPlan(res)
				fmt.Print("输入 yes 通过大纲，或输入修改意见： ")
				line, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				line = strings.TrimSpace(line)
				fb := &model.PlanFeedback{Text: line}
				if strings.EqualFold(line, "yes") || strings.EqualFold(line, "y") || line == "true" {
					fb = &model.PlanFeedback{Approved: true}
				}
				if !fb.Approved && line == "" {
					continue
				}
				reportID := res.ReportID
				if res, err = a.research.ContinueResearch(ctx, consoleUser, reportID, fb); err != nil {
					slog.Error("plan failed, report = %s, err = %+v", reportID, err)
					return err
				}
			}
			fmt.Println()
			fmt.Println(res.Report)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "default", "project id used to scope internal search")
	return cmd
}

func printPlan(res *model.ResearchResult) {
	fmt.Printf("\n报告大纲 %s\n%s\n\n", res.ReportID, res.Description)
	for i, sec := range res.Plan {
		mark := ""
		if sec.NeedsResearch() {
			mark = " [research]"
		}
		fmt.Printf("%d. %s%s\n   %s\n", i+1, sec.Name, mark, sec.Description)
	}
	fmt.Println()
}

// printEvent 控制台输出事件
func printEvent(_ context.Context, e model.Event) error {
	switch e.Event {
	case consts.EventStatus:
		fmt.Printf("[%s]\n", e.Status)
	case consts.EventMessage:
		if e.Task != "" {
			fmt.Printf("<%s> %s\n%s\n\n", e.Type, e.Task, e.Content)
		} else {
			fmt.Printf("<%s> %s\n\n", e.Type, e.Content)
		}
	}
	return nil
}
