package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lti-assignments-api/internal/middleware"
)

// Handlers groups the HTTP handlers mounted under the API prefix.
type Handlers struct {
	Sessions    *SessionHandler
	Assignments *AssignmentHandler
	Submissions *SubmissionHandler
	Tasks       *TaskHandler
	Exports     *ExportHandler
}

// RegisterRoutes mounts the API. Everything but session issuance and signed downloads needs a session token.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, tokens middleware.TokenValidator, launchKey string) {
	api.POST("/sessions", middleware.LaunchKey(launchKey), h.Sessions.Launch)
	api.GET("/exports/download", h.Exports.Download)

	secured := api.Group("/", middleware.Session(tokens))
	instructor := middleware.RequireInstructor()

	secured.GET("/sessions/me", h.Sessions.Current)

	assignments := secured.Group("/assignments")
	assignments.GET("/:id", h.Assignments.Get)
	assignments.GET("/type/task", instructor, h.Assignments.ListTaskAssignments)
	assignments.POST("/task", instructor, h.Assignments.CreateTask)
	assignments.POST("/quiz", instructor, h.Assignments.CreateQuiz)
	assignments.POST("/:id/start", instructor, h.Assignments.Start)
	assignments.POST("/:id/solution/toggle", instructor, h.Assignments.ToggleSolution)
	assignments.POST("/:id/exports", instructor, h.Exports.Export)

	submissions := secured.Group("/submissions")
	submissions.GET("/assignment/:assignmentId", h.Submissions.Open)
	submissions.GET("/started/:id", h.Submissions.Started)
	submissions.GET("/quiz/:id", instructor, h.Submissions.QuizTasks)
	submissions.POST("/quiz/:id/answers", h.Submissions.SaveAnswers)
	submissions.POST("/quiz/:id", h.Submissions.Submit)
	submissions.GET("/pending/:assignmentId", instructor, h.Submissions.Pending)
	submissions.GET("/published/:assignmentId", instructor, h.Submissions.Published)
	submissions.POST("/publish", instructor, h.Submissions.Publish)

	tasks := secured.Group("/tasks")
	tasks.POST("", h.Tasks.Save)
	tasks.GET("/submission/:submissionId", h.Tasks.Submitted)
	tasks.GET("/solution/:submissionId", h.Tasks.Solutions)
	tasks.POST("/include", instructor, h.Tasks.Included)
	tasks.GET("/groups/:assignmentId", instructor, h.Tasks.ListGroups)
	tasks.POST("/groups/info", instructor, h.Tasks.GroupInfo)
	tasks.POST("/groups", instructor, h.Tasks.CreateGroup)
	tasks.POST("/:id/evaluate", instructor, h.Tasks.Evaluate)
	tasks.DELETE("/:id/edit", instructor, h.Tasks.DeleteEdit)
}
