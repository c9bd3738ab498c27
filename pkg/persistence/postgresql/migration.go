package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE queue_items (
				id UUID PRIMARY KEY,
				recipient VARCHAR(320) NOT NULL,
				payload JSONB NOT NULL,
				priority VARCHAR(10) NOT NULL CHECK (priority IN ('high', 'normal', 'low')),
				scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				attempts INT NOT NULL DEFAULT 0,
				max_attempts INT NOT NULL CHECK (max_attempts >= 1),
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'processing', 'sent', 'failed', 'cancelled')),
				error TEXT,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_queue_items_status ON queue_items(status);
			CREATE INDEX idx_queue_items_scheduled_at ON queue_items(scheduled_at);
			CREATE INDEX idx_queue_items_ready ON queue_items(status, scheduled_at) WHERE status = 'pending';
		`,
		2: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT,
				trigger JSONB NOT NULL,
				steps JSONB NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT false,
				stats JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_is_active ON workflows(is_active);

			CREATE TABLE workflow_executions (
				id VARCHAR(64) PRIMARY KEY,
				workflow_id UUID NOT NULL,
				contact_id VARCHAR(64) NOT NULL,
				current_step_id VARCHAR(255),
				status VARCHAR(20) NOT NULL CHECK (status IN ('active', 'completed', 'paused', 'failed')),
				variables JSONB,
				history JSONB NOT NULL DEFAULT '[]',
				wake_at TIMESTAMP WITH TIME ZONE,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_executions_workflow_id ON workflow_executions(workflow_id);
			CREATE INDEX idx_workflow_executions_status ON workflow_executions(status);
			CREATE INDEX idx_workflow_executions_wake_at ON workflow_executions(wake_at) WHERE wake_at IS NOT NULL;
		`,
		3: `
			CREATE TABLE campaigns (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				subject VARCHAR(998) NOT NULL,
				body TEXT,
				status VARCHAR(20) NOT NULL CHECK (status IN ('draft', 'scheduled', 'sending', 'paused', 'sent', 'failed')),
				recipients JSONB NOT NULL DEFAULT '[]',
				settings JSONB,
				stats JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_campaigns_status ON campaigns(status);
		`,
	}
}
