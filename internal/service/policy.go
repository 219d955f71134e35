package service

import (
	"strings"

	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/pkg/config"
)

// Operation names a lifecycle operation whose guards depend on the caller's role.
type Operation string

const (
	OpOpenSubmission   Operation = "open_submission"
	OpCreateTask       Operation = "create_task"
	OpFinishSubmission Operation = "finish_submission"
	OpEditTask         Operation = "edit_task"
	OpEvaluateTask     Operation = "evaluate_task"
	OpPublish          Operation = "publish_submissions"
)

// Guard is the role-specific rule set of one operation.
type Guard struct {
	// RequireStartedAssignment rejects the call unless the assignment is STARTED and open.
	RequireStartedAssignment bool
	// CreateSubmissionOutsideStarted allows materialising a submission while the assignment is not STARTED.
	CreateSubmissionOutsideStarted bool
	// InitialSubmissionStatus applies to task submissions; quiz attempts always start STARTED.
	InitialSubmissionStatus models.SubmissionStatus
	FinishedSubmissionStatus models.SubmissionStatus
	InitialTaskStatus        models.TaskStatus
	// ReturnIDOverride replaces the session return id when set.
	ReturnIDOverride *string
	// UnboundedTasks lets the caller add tasks beyond the assignment size.
	UnboundedTasks bool
	// RequireStartedSubmission restricts task writes to a STARTED submission.
	RequireStartedSubmission bool
	Allowed                  bool
}

type policyKey struct {
	op   Operation
	role models.Role
}

// Policy is the declarative (operation, role) table consulted instead of inline role checks.
type Policy struct {
	rules map[policyKey]Guard
}

var previewReturnID = "0"

// DefaultPolicy returns the guards of the instructor and learner launch roles.
func DefaultPolicy() *Policy {
	return &Policy{rules: map[policyKey]Guard{
		{OpOpenSubmission, models.RoleInstructor}: {
			CreateSubmissionOutsideStarted: true,
			InitialSubmissionStatus:        models.SubmissionStatusEvaluatedPublished,
			ReturnIDOverride:               &previewReturnID,
			Allowed:                        true,
		},
		{OpOpenSubmission, models.RoleLearner}: {
			RequireStartedAssignment: true,
			InitialSubmissionStatus:  models.SubmissionStatusStarted,
			Allowed:                  true,
		},
		{OpCreateTask, models.RoleInstructor}: {
			CreateSubmissionOutsideStarted: true,
			InitialTaskStatus:              models.TaskStatusEvaluatedInclude,
			UnboundedTasks:                 true,
			Allowed:                        true,
		},
		{OpCreateTask, models.RoleLearner}: {
			RequireStartedAssignment: true,
			RequireStartedSubmission: true,
			InitialTaskStatus:        models.TaskStatusPending,
			Allowed:                  true,
		},
		{OpFinishSubmission, models.RoleInstructor}: {
			FinishedSubmissionStatus: models.SubmissionStatusEvaluatedPublished,
			Allowed:                  true,
		},
		{OpFinishSubmission, models.RoleLearner}: {
			FinishedSubmissionStatus: models.SubmissionStatusPending,
			Allowed:                  true,
		},
		{OpEditTask, models.RoleInstructor}:     {Allowed: true},
		{OpEditTask, models.RoleLearner}:        {Allowed: false},
		{OpEvaluateTask, models.RoleInstructor}: {Allowed: true},
		{OpEvaluateTask, models.RoleLearner}:    {Allowed: false},
		{OpPublish, models.RoleInstructor}:      {Allowed: true},
		{OpPublish, models.RoleLearner}:         {Allowed: false},
	}}
}

// Guard returns the rules for the operation. Unknown roles get the learner rules.
func (p *Policy) Guard(op Operation, role models.Role) Guard {
	if p == nil {
		p = DefaultPolicy()
	}
	if guard, ok := p.rules[policyKey{op, role}]; ok {
		return guard
	}
	return p.rules[policyKey{op, models.RoleLearner}]
}

// RoleResolver maps platform launch roles onto session roles.
type RoleResolver struct {
	instructor []string
	learner    []string
}

// NewRoleResolver builds a resolver from configuration. Teaching assistants act as instructors.
func NewRoleResolver(cfg config.RolesConfig) *RoleResolver {
	return &RoleResolver{
		instructor: compact(cfg.Instructor, cfg.TeachingAssistant),
		learner:    compact(cfg.Learner),
	}
}

// Resolve returns the session role for a comma separated list of launch roles. Instructor roles win.
func (r *RoleResolver) Resolve(launchRoles string) (models.Role, bool) {
	learner := false
	for _, raw := range strings.Split(launchRoles, ",") {
		role := strings.TrimSpace(raw)
		if role == "" {
			continue
		}
		if matchesRole(role, r.instructor) {
			return models.RoleInstructor, true
		}
		if matchesRole(role, r.learner) {
			learner = true
		}
	}
	if learner {
		return models.RoleLearner, true
	}
	return "", false
}

// matchesRole accepts both short names and full role URNs ending in the configured name.
func matchesRole(role string, names []string) bool {
	for _, name := range names {
		if strings.EqualFold(role, name) || strings.HasSuffix(strings.ToLower(role), "#"+strings.ToLower(name)) ||
			strings.HasSuffix(strings.ToLower(role), "/"+strings.ToLower(name)) {
			return true
		}
	}
	return false
}

func compact(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
