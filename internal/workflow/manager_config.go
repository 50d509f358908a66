package workflow

import "storyreel/internal/queue"

// ConfigureStages registers the concrete stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) {
	var stages []pipelineStage
	if set.Renderer != nil {
		stages = append(stages, pipelineStage{
			name:             "render",
			handler:          set.Renderer,
			startStatus:      queue.StatusPending,
			processingStatus: queue.StatusRendering,
			doneStatus:       queue.StatusRendered,
		})
	}
	if set.Publisher != nil {
		stages = append(stages, pipelineStage{
			name:             "publish",
			handler:          set.Publisher,
			startStatus:      queue.StatusRendered,
			processingStatus: queue.StatusPublishing,
			doneStatus:       queue.StatusCompleted,
		})
	}

	byStart := make(map[queue.Status]pipelineStage, len(stages))
	order := make([]queue.Status, 0, len(stages))
	for _, stg := range stages {
		byStart[stg.startStatus] = stg
		order = append(order, stg.startStatus)
	}

	m.mu.Lock()
	m.stages = stages
	m.stageByStart = byStart
	m.statusOrder = order
	m.mu.Unlock()
}
