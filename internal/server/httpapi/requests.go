package httpapi

type uploadRequest struct {
	Key         string `json:"key" binding:"required,max=1024"`
	Content     string `json:"content" binding:"required"`
	ContentType string `json:"contentType" binding:"omitempty,max=255"`
}

type replaceRequest struct {
	NewContent string `json:"newContent" binding:"required"`
}

type addCommentRequest struct {
	Comment string `json:"comment" binding:"required,max=10000"`
}

type editCommentRequest struct {
	NewComment string `json:"newComment" binding:"required,max=10000"`
}

type addQuestionRequest struct {
	Question string `json:"question" binding:"required,max=10000"`
}

type editQuestionRequest struct {
	NewContent string `json:"newContent" binding:"required,max=10000"`
}

type answerRequest struct {
	Answer string `json:"answer" binding:"required,max=10000"`
}
