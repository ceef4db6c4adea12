// Package match implements capability matching between tasks and agents.
package match

import (
	"sort"

	"github.com/kelhray/dispatch/pkg/models"
)

// requiredCaps maps each task type to the set of capabilities that satisfy it.
var requiredCaps = map[models.TaskType][]models.Capability{
	models.TaskTypeCode:          {models.CapabilityCode, models.CapabilityFullstack},
	models.TaskTypeBugfix:        {models.CapabilityBugfix, models.CapabilityCode, models.CapabilityFullstack},
	models.TaskTypeReview:        {models.CapabilityReview, models.CapabilityFullstack},
	models.TaskTypeDeploy:        {models.CapabilityDeploy, models.CapabilityFullstack},
	models.TaskTypeResearch:      {models.CapabilityResearch, models.CapabilityFullstack},
	models.TaskTypeDocumentation: {models.CapabilityDocumentation, models.CapabilityFullstack},
	models.TaskTypeTest:          {models.CapabilityTest, models.CapabilityCode, models.CapabilityFullstack},
	models.TaskTypeMaintenance:   {models.CapabilityMaintenance, models.CapabilityCode, models.CapabilityFullstack},
}

// RequiredCapabilities returns the capabilities that can satisfy the given
// task type. Unknown task types fail closed to the code capability set rather
// than erroring, so a task with a novel type still finds generalist agents.
func RequiredCapabilities(taskType models.TaskType) []models.Capability {
	if caps, ok := requiredCaps[taskType]; ok {
		return caps
	}
	return requiredCaps[models.TaskTypeCode]
}

// CanHandle returns true if the agent's capability set intersects the
// capabilities required for the task type and the agent's config accepts it.
func CanHandle(agent *models.Agent, taskType models.TaskType) bool {
	if !agent.AcceptsType(taskType) {
		return false
	}
	for _, c := range RequiredCapabilities(taskType) {
		if agent.HasCapability(c) {
			return true
		}
	}
	return false
}

// Score ranks an agent for selection. Higher is better. Both terms are on a
// 0-100 scale: the success rate as-is, and the completed-task count capped
// at 100 so a long-running agent doesn't dominate forever.
func Score(agent *models.Agent) float64 {
	completed := float64(agent.TasksCompleted)
	if completed > 100 {
		completed = 100
	}
	return 0.6*agent.SuccessRate + 0.4*completed
}

// SelectBestAgent filters to idle agents capable of the task's type and
// returns the one with the highest Score. Ties break by agent ID so the
// selection is deterministic regardless of input order. Returns nil when no
// agent qualifies, which callers treat as "work stays queued", not an error.
func SelectBestAgent(agents []*models.Agent, task *models.Task) *models.Agent {
	var candidates []*models.Agent
	for _, a := range agents {
		if a.Status != models.AgentStatusIdle {
			continue
		}
		if !CanHandle(a, task.Type) {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		si, sj := Score(candidates[i]), Score(candidates[j])
		if si != sj {
			return si > sj
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0]
}
