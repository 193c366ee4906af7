package campaignflow

import "time"

// CampaignPatch names the campaign fields an update changes.
// Absent fields are left untouched, null fields are cleared.
type CampaignPatch struct {
	Name         Field[string]         `json:"name"`
	BrandID      Field[string]         `json:"brandId"`
	Participants Field[Participants]   `json:"participants"`
	Status       Field[CampaignStatus] `json:"status"`
	CallbackID   Field[string]         `json:"callbackId"`
	DeletedAt    Field[time.Time]      `json:"-"`
}

// IsEmpty reports whether the patch changes nothing
func (p CampaignPatch) IsEmpty() bool {
	return p.Name.IsAbsent() && p.BrandID.IsAbsent() && p.Participants.IsAbsent() &&
		p.Status.IsAbsent() && p.CallbackID.IsAbsent() && p.DeletedAt.IsAbsent()
}

// Validate checks the patch against the campaign schema
func (p CampaignPatch) Validate() error {
	var fields []FieldError

	if p.Name.IsNull() {
		fields = append(fields, FieldError{Field: "name", Reason: "cannot be null"})
	}
	if name, ok := p.Name.Value(); ok && name == "" {
		fields = append(fields, FieldError{Field: "name", Reason: "must not be empty"})
	}
	if p.Status.IsNull() {
		fields = append(fields, FieldError{Field: "status", Reason: "cannot be null"})
	}
	if status, ok := p.Status.Value(); ok && !status.IsValid() {
		fields = append(fields, FieldError{Field: "status", Reason: "must be one of planned, generating, pending_approval, completed, cancelled, failed"})
	}
	if status, ok := p.Status.Value(); ok && status == CampaignStatusPendingApproval && !p.CallbackID.IsSet() {
		fields = append(fields, FieldError{Field: "callbackId", Reason: "is required when entering pending_approval"})
	}
	if id, ok := p.CallbackID.Value(); ok && id == "" {
		fields = append(fields, FieldError{Field: "callbackId", Reason: "must not be empty"})
	}
	if p.CallbackID.IsSet() {
		if status, ok := p.Status.Value(); !ok || status != CampaignStatusPendingApproval {
			fields = append(fields, FieldError{Field: "callbackId", Reason: "may only be set when entering pending_approval"})
		}
	}

	if len(fields) > 0 {
		return NewValidationError("invalid campaign update", fields...)
	}
	return nil
}

// Normalized applies the derived-field rules: leaving pending_approval
// clears the callback token.
func (p CampaignPatch) Normalized() CampaignPatch {
	if status, ok := p.Status.Value(); ok && status != CampaignStatusPendingApproval && p.CallbackID.IsAbsent() {
		p.CallbackID = Null[string]()
	}
	return p
}

// Apply returns a copy of c with the patch applied. Version and
// timestamps are not touched; stores manage those.
func (p CampaignPatch) Apply(c Campaign) Campaign {
	if v, ok := p.Name.Value(); ok {
		c.Name = v
	}
	applyString(p.BrandID, &c.BrandID)
	if p.Participants.IsNull() {
		c.Participants = Participants{}
	} else if v, ok := p.Participants.Value(); ok {
		c.Participants = Participants{PersonaIDs: append([]string(nil), v.PersonaIDs...)}
	}
	if v, ok := p.Status.Value(); ok {
		c.Status = v
	}
	applyString(p.CallbackID, &c.CallbackID)
	if p.DeletedAt.IsNull() {
		c.DeletedAt = nil
	} else if v, ok := p.DeletedAt.Value(); ok {
		c.DeletedAt = ToPtr(v)
	}
	return c
}

// PostPatch names the post fields an update changes
type PostPatch struct {
	Status    Field[PostStatus]  `json:"status"`
	LastError Field[PostError]   `json:"lastError"`
	Content   Field[PostContent] `json:"content"`
	Platform  Field[string]      `json:"platform"`
	DeletedAt Field[time.Time]   `json:"-"`
}

// IsEmpty reports whether the patch changes nothing
func (p PostPatch) IsEmpty() bool {
	return p.Status.IsAbsent() && p.LastError.IsAbsent() && p.Content.IsAbsent() &&
		p.Platform.IsAbsent() && p.DeletedAt.IsAbsent()
}

// Validate checks the patch against the post schema
func (p PostPatch) Validate() error {
	var fields []FieldError

	if p.Status.IsNull() {
		fields = append(fields, FieldError{Field: "status", Reason: "cannot be null"})
	}
	if status, ok := p.Status.Value(); ok && !status.IsValid() {
		fields = append(fields, FieldError{Field: "status", Reason: "must be one of planned, generating, completed, failed, skipped, needs_review"})
	}
	if e, ok := p.LastError.Value(); ok {
		if e.Code == "" {
			fields = append(fields, FieldError{Field: "lastError.code", Reason: "is required"})
		}
		if e.Message == "" {
			fields = append(fields, FieldError{Field: "lastError.message", Reason: "is required"})
		}
	}
	if c, ok := p.Content.Value(); ok && c.Text == "" {
		fields = append(fields, FieldError{Field: "content.text", Reason: "is required"})
	}

	if len(fields) > 0 {
		return NewValidationError("invalid post update", fields...)
	}
	return nil
}

// Normalized applies the lastError rule: setting a status other than
// failed without an error in the same patch clears the stored error.
// Any other combination leaves lastError as the patch names it.
func (p PostPatch) Normalized() PostPatch {
	if status, ok := p.Status.Value(); ok && status != PostStatusFailed && p.LastError.IsAbsent() {
		p.LastError = Null[PostError]()
	}
	return p
}

// Apply returns a copy of post with the patch applied
func (p PostPatch) Apply(post SocialPost) SocialPost {
	if v, ok := p.Status.Value(); ok {
		post.Status = v
	}
	if p.LastError.IsNull() {
		post.LastError = nil
	} else if v, ok := p.LastError.Value(); ok {
		post.LastError = ToPtr(v)
	}
	if p.Content.IsNull() {
		post.Content = nil
	} else if v, ok := p.Content.Value(); ok {
		post.Content = ToPtr(v)
	}
	applyString(p.Platform, &post.Platform)
	if p.DeletedAt.IsNull() {
		post.DeletedAt = nil
	} else if v, ok := p.DeletedAt.Value(); ok {
		post.DeletedAt = ToPtr(v)
	}
	return post
}

func applyString(f Field[string], dst *string) {
	if f.IsNull() {
		*dst = ""
	} else if v, ok := f.Value(); ok {
		*dst = v
	}
}
