package model

import "fmt"

// StepPlan 计划模型的结构化输出
type StepPlan struct {
	Steps []string `json:"steps"` // 按顺序排列的步骤
}

// Validate 计划至少一个步骤
func (p *StepPlan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan must contain at least one step")
	}
	return nil
}

// Act 重规划模型的结构化输出，Plan 为空表示任务完成
type Act struct {
	Plan   []string `json:"plan"`
	Update string   `json:"update"`
}
