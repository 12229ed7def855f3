package bykc

import "encoding/json"

// apiEnvelope is the decrypted response envelope shared by every operation.
// The service encodes status as a JSON string on some endpoints and a number
// on others; json.Number absorbs both.
type apiEnvelope struct {
	Status json.Number     `json:"status"`
	ErrMsg string          `json:"errmsg"`
	Data   json.RawMessage `json:"data"`
}

// ProfileDTO is the authenticated user's profile.
type ProfileDTO struct {
	ID         int64  `json:"id"`
	EmployeeID string `json:"employeeId"`
	RealName   string `json:"realName"`
	College    string `json:"college"`
}

// CourseDTO is a course as served by the catalog and detail queries. All
// timestamps are Beijing wall-clock strings in "2006-01-02 15:04:05" form.
type CourseDTO struct {
	ID                    int64  `json:"id"`
	CourseName            string `json:"courseName"`
	CourseTeacher         string `json:"courseTeacher"`
	CoursePosition        string `json:"coursePosition"`
	CourseStartDate       string `json:"courseStartDate"`
	CourseEndDate         string `json:"courseEndDate"`
	CourseSelectStartDate string `json:"courseSelectStartDate"`
	CourseSelectEndDate   string `json:"courseSelectEndDate"`
	CourseCancelEndDate   string `json:"courseCancelEndDate"`
	CourseCurrentCount    int    `json:"courseCurrentCount"`
	CourseMaxCount        int    `json:"courseMaxCount"`
	CourseDesc            string `json:"courseDesc"`
	Selected              bool   `json:"selected"`
}

// CoursePageDTO is one page of the semester catalog.
type CoursePageDTO struct {
	Content       []CourseDTO `json:"content"`
	TotalElements int         `json:"totalElements"`
	TotalPages    int         `json:"totalPages"`
}

// ChosenCourseDTO wraps a chosen course; the service nests the course fields
// one level down.
type ChosenCourseDTO struct {
	CourseInfo CourseDTO `json:"courseInfo"`
}

// ChosenListDTO is the response of the chosen-courses query.
type ChosenListDTO struct {
	CourseList []ChosenCourseDTO `json:"courseList"`
}

// SemesterDTO describes one semester's boundaries from the configuration
// endpoint. The first entry is the current semester.
type SemesterDTO struct {
	ID                int64  `json:"id"`
	SemesterStartDate string `json:"semesterStartDate"`
	SemesterEndDate   string `json:"semesterEndDate"`
}

// AllConfigDTO is the configuration listing (campus, college, role, semester,
// term); only the semester boundaries matter here.
type AllConfigDTO struct {
	Semester []SemesterDTO `json:"semester"`
}

// ChooseResultDTO is returned by the select and withdraw operations.
type ChooseResultDTO struct {
	CourseCurrentCount int `json:"courseCurrentCount"`
}
