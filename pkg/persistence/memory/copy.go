package memory

import "github.com/heraldhq/herald/pkg/models"

func copyItem(item *models.QueueItem) *models.QueueItem {
	clone := *item
	clone.Metadata = copyMap(item.Metadata)
	clone.Payload.TemplateData = copyMap(item.Payload.TemplateData)

	if item.Payload.Headers != nil {
		headers := make(map[string]string, len(item.Payload.Headers))
		for k, v := range item.Payload.Headers {
			headers[k] = v
		}

		clone.Payload.Headers = headers
	}

	return &clone
}

func copyWorkflow(wf *models.Workflow) *models.Workflow {
	clone := *wf
	clone.Trigger.Conditions = copyMap(wf.Trigger.Conditions)
	clone.Steps = make([]*models.WorkflowStep, len(wf.Steps))

	for i, step := range wf.Steps {
		stepClone := *step
		stepClone.Config = copyMap(step.Config)
		stepClone.NextSteps = append([]string(nil), step.NextSteps...)
		clone.Steps[i] = &stepClone
	}

	return &clone
}

func copyExecution(execution *models.WorkflowExecution) *models.WorkflowExecution {
	clone := *execution
	clone.Variables = copyMap(execution.Variables)
	clone.History = append([]models.HistoryEntry(nil), execution.History...)

	if execution.WakeAt != nil {
		wakeAt := *execution.WakeAt
		clone.WakeAt = &wakeAt
	}

	if execution.CompletedAt != nil {
		completedAt := *execution.CompletedAt
		clone.CompletedAt = &completedAt
	}

	return &clone
}

func copyCampaign(campaign *models.Campaign) *models.Campaign {
	clone := *campaign
	clone.Recipients = make([]*models.Recipient, len(campaign.Recipients))

	for i, recipient := range campaign.Recipients {
		recipientClone := *recipient

		if recipient.SentAt != nil {
			sentAt := *recipient.SentAt
			recipientClone.SentAt = &sentAt
		}

		clone.Recipients[i] = &recipientClone
	}

	return &clone
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = v
	}

	return clone
}
