package models

import (
	"strconv"
	"strings"
)

// Profile is the read-only applicant data a strategy fills forms from
type Profile struct {
	UserID     string `json:"user_id" yaml:"user_id"`
	FirstName  string `json:"first_name" yaml:"first_name"`
	LastName   string `json:"last_name" yaml:"last_name"`
	Email      string `json:"email" yaml:"email"`
	Phone      string `json:"phone" yaml:"phone"`
	City       string `json:"city,omitempty" yaml:"city"`
	Location   string `json:"location,omitempty" yaml:"location"`
	LinkedIn   string `json:"linkedin,omitempty" yaml:"linkedin"`
	Website    string `json:"website,omitempty" yaml:"website"`
	YearsOfExp int    `json:"years_of_experience,omitempty" yaml:"years_of_experience"`
	// base resume file uploaded when no optimized one is available
	ResumePath  string `json:"resume_path" yaml:"resume_path"`
	CoverLetter string `json:"cover_letter,omitempty" yaml:"cover_letter"`
	// screening answers keyed by normalized question keyword, e.g. "sponsorship" -> "No"
	Answers map[string]string `json:"answers,omitempty" yaml:"answers"`
	// structured resume used for tailoring, optional
	Resume *Resume `json:"resume,omitempty" yaml:"resume"`
}

// FullName joins first and last name
func (p *Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// FieldValue returns the profile value for a logical form field, "" when unknown.
func (p *Profile) FieldValue(field string) string {
	switch field {
	case "first_name":
		return p.FirstName
	case "last_name":
		return p.LastName
	case "full_name":
		return p.FullName()
	case "email":
		return p.Email
	case "phone":
		return p.Phone
	case "city":
		return p.City
	case "location":
		if p.Location != "" {
			return p.Location
		}
		return p.City
	case "linkedin":
		return p.LinkedIn
	case "website":
		return p.Website
	case "cover_letter":
		return p.CoverLetter
	case "experience_years":
		if p.YearsOfExp > 0 {
			return strconv.Itoa(p.YearsOfExp)
		}
	}
	return ""
}

type Link struct {
	LinkedIn  string `json:"linkedin,omitempty" yaml:"linkedin"`
	Portfolio string `json:"portfolio,omitempty" yaml:"portfolio"`
}

type PersonalInformation struct {
	FullName string `json:"full_name" yaml:"full_name"`
	JobTitle string `json:"job_title" yaml:"job_title"`
	Location string `json:"location" yaml:"location"`
	Email    string `json:"email" yaml:"email"`
	Phone    string `json:"phone" yaml:"phone"`
	Links    Link   `json:"links" yaml:"links"`
}

type Experience struct {
	Role             string   `json:"role" yaml:"role"`
	Company          string   `json:"company" yaml:"company"`
	Duration         string   `json:"duration" yaml:"duration"`
	Responsibilities []string `json:"responsibilities" yaml:"responsibilities"`
	TechStack        []string `json:"tech_stack,omitempty" yaml:"tech_stack"`
}

type Project struct {
	Name    string   `json:"name" yaml:"name"`
	URL     string   `json:"url,omitempty" yaml:"url"`
	Details []string `json:"details,omitempty" yaml:"details"`
}

type Education struct {
	Degree         string `json:"degree" yaml:"degree"`
	Institution    string `json:"institution" yaml:"institution"`
	GraduationYear string `json:"graduation_year" yaml:"graduation_year"`
}

// Resume is the structured resume the tailoring client rewrites per job
type Resume struct {
	PersonalInformation PersonalInformation `json:"personal_information" yaml:"personal_information"`
	Summary             string              `json:"summary" yaml:"summary"`
	Skills              []string            `json:"skills" yaml:"skills"`
	Experience          []Experience        `json:"experience" yaml:"experience"`
	Projects            []Project           `json:"projects" yaml:"projects"`
	Education           []Education         `json:"education" yaml:"education"`
}
