package login

import "github.com/ovaphlow/pitchfork/service-auth-go/internal/sso"

// LocalOption is the sso_type used by the local account entry.
const LocalOption = "local"

// Option is one login button.
type Option struct {
	ReadableName string `json:"readable_name"`
	InternalName string `json:"internal_name"`
	Active       bool   `json:"active"`
	Local        bool   `json:"local,omitempty"`
}

// OptionCategory groups the options shown together.
type OptionCategory struct {
	Name    string   `json:"name"`
	Options []Option `json:"options"`
}

type OptionsResponse struct {
	Categories []OptionCategory `json:"categories"`
}

func (s *Service) ssoOption(tag sso.Tag, readable string) Option {
	o := Option{ReadableName: readable, InternalName: string(tag)}
	if p, err := s.Providers.Get(string(tag)); err == nil {
		o.Active = p.Configured()
	}
	return o
}

// Options lists the login methods and whether each one is enabled.
func (s *Service) Options() OptionsResponse {
	return OptionsResponse{Categories: []OptionCategory{
		{
			Name: "Developer login",
			Options: []Option{
				s.ssoOption(sso.TagDevForum, "Login Using a Development Forum Account"),
			},
		},
		{
			Name: "Supporter (patron) login",
			Options: []Option{
				s.ssoOption(sso.TagCommunityForum, "Login Using a Community Forum Account"),
				s.ssoOption(sso.TagPatreon, "Login Using Patreon"),
			},
		},
		{
			Name: "Local Account",
			Options: []Option{
				{ReadableName: "Login using a local account", InternalName: LocalOption, Active: s.LocalEnabled, Local: true},
			},
		},
	}}
}
