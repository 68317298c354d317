package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/enginuity/internal/server/annotations"
)

// AnnotationService is the comment and question API the handlers use.
type AnnotationService interface {
	AddComment(ctx context.Context, fileKey, author, text string) (*annotations.Comment, error)
	EditComment(ctx context.Context, fileKey, id, text string) (*annotations.Comment, error)
	DeleteComment(ctx context.Context, fileKey, id string) error
	ListComments(ctx context.Context, fileKey string) ([]annotations.Comment, error)

	AddQuestion(ctx context.Context, fileKey, author, text string) (*annotations.Question, error)
	EditQuestion(ctx context.Context, fileKey, id, text string) (*annotations.Question, error)
	AnswerQuestion(ctx context.Context, fileKey, id, answer string) (*annotations.Question, error)
	DeleteQuestion(ctx context.Context, fileKey, id string) error
	ListQuestions(ctx context.Context, fileKey string) ([]annotations.Question, error)
}

type annotationHandler struct {
	files       FileService
	annotations AnnotationService
}

// requireFile is mounted on every annotation route: annotating a missing
// file is a 404.
func (h *annotationHandler) requireFile(c *gin.Context) {
	if err := h.files.Exists(c.Request.Context(), c.Param("key")); err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.Next()
}

func (h *annotationHandler) listComments(c *gin.Context) {
	items, err := h.annotations.ListComments(c.Request.Context(), c.Param("key"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *annotationHandler) addComment(c *gin.Context) {
	var req addCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	comment, err := h.annotations.AddComment(c.Request.Context(), c.Param("key"), c.GetString(callerKey), req.Comment)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Comment added", "comment": comment})
}

func (h *annotationHandler) editComment(c *gin.Context) {
	var req editCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	comment, err := h.annotations.EditComment(c.Request.Context(), c.Param("key"), c.Param("commentId"), req.NewComment)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment updated", "comment": comment})
}

func (h *annotationHandler) deleteComment(c *gin.Context) {
	if err := h.annotations.DeleteComment(c.Request.Context(), c.Param("key"), c.Param("commentId")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted"})
}

func (h *annotationHandler) listQuestions(c *gin.Context) {
	items, err := h.annotations.ListQuestions(c.Request.Context(), c.Param("key"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *annotationHandler) addQuestion(c *gin.Context) {
	var req addQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	question, err := h.annotations.AddQuestion(c.Request.Context(), c.Param("key"), c.GetString(callerKey), req.Question)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Question added", "question": question})
}

func (h *annotationHandler) editQuestion(c *gin.Context) {
	var req editQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	question, err := h.annotations.EditQuestion(c.Request.Context(), c.Param("key"), c.Param("questionId"), req.NewContent)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Question updated", "question": question})
}

func (h *annotationHandler) answerQuestion(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	question, err := h.annotations.AnswerQuestion(c.Request.Context(), c.Param("key"), c.Param("questionId"), req.Answer)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Question answered", "question": question})
}

func (h *annotationHandler) deleteQuestion(c *gin.Context) {
	if err := h.annotations.DeleteQuestion(c.Request.Context(), c.Param("key"), c.Param("questionId")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Question deleted"})
}
