package dto

// DispatchContact is one target of a campaign dispatch
type DispatchContact struct {
	ContactID   uint   `json:"contact_id" validate:"required"`
	PhoneNumber string `json:"phone_number" validate:"required,min=7,max=20"`
}

// DispatchCampaignRequest starts one outreach run
type DispatchCampaignRequest struct {
	CustomerID uint   `json:"customer_id" validate:"required"`
	Kind       string `json:"kind" validate:"required,oneof=send_message add_to_group"`

	MessageBody *string `json:"message_body,omitempty"`
	GroupID     *string `json:"group_id,omitempty"`
	GroupLabel  *string `json:"group_label,omitempty"`

	Strategy        string `json:"strategy" validate:"omitempty,oneof=per-job deferred"`
	DelayMinSeconds int    `json:"delay_min_seconds" validate:"omitempty,min=0"`
	DelayMaxSeconds int    `json:"delay_max_seconds" validate:"omitempty,min=0"`

	Contacts []DispatchContact `json:"contacts" validate:"required,min=1,dive"`
}

// DispatchCampaignResponse reports the outcome of the dispatch step
type DispatchCampaignResponse struct {
	CampaignUUID  string `json:"campaign_uuid"`
	Status        string `json:"status"`
	TotalContacts int64  `json:"total_contacts"`
	EnqueuedJobs  int64  `json:"enqueued_jobs"`
	FailedJobs    int64  `json:"failed_jobs"`
}

// CampaignProgressRequest is the worker progress callback payload
type CampaignProgressRequest struct {
	Processed int64 `json:"processed" validate:"min=0"`
	Failed    int64 `json:"failed" validate:"min=0"`
}

// CampaignDTO is the read model for one outreach run
type CampaignDTO struct {
	UUID              string `json:"uuid"`
	CustomerID        uint   `json:"customer_id"`
	Status            string `json:"status"`
	Strategy          string `json:"strategy"`
	TotalContacts     int64  `json:"total_contacts"`
	ProcessedContacts int64  `json:"processed_contacts"`
	FailedContacts    int64  `json:"failed_contacts"`
	CreatedAt         string `json:"created_at"`
}
