package models

// LegacyCheckInSurveyID is the reserved survey id of the fixed weekly check-in question set.
const LegacyCheckInSurveyID = "weekly-check-in"

// LegacyCheckInSurvey returns the fixed six-question weekly check-in as a survey definition,
// so legacy check-ins render, validate and submit through the same path as dynamic surveys.
func LegacyCheckInSurvey() SurveyWithQuestions {
	sid := LegacyCheckInSurveyID
	choice := func(qid string, pairs ...string) []Option {
		opts := make([]Option, 0, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			opts = append(opts, Option{
				ID:         qid + "-" + pairs[i],
				QuestionID: qid,
				Value:      pairs[i],
				Label:      pairs[i+1],
				OrderIndex: i / 2,
			})
		}
		return opts
	}
	return SurveyWithQuestions{
		Survey: Survey{
			ID:      sid,
			Title:   "Weekly Check-In",
			Status:  SurveyStatusPublished,
			Version: 1,
		},
		Questions: []Question{
			{
				ID: "wc-mood", SurveyID: sid, OrderIndex: 0, Required: true,
				Text:    "How was the patient's overall mood this week?",
				Type:    QuestionTypeSingleChoice,
				Options: choice("wc-mood", "good", "Good", "fair", "Fair", "poor", "Poor"),
			},
			{
				ID: "wc-falls", SurveyID: sid, OrderIndex: 1, Required: true,
				Text: "Did the patient have any falls?",
				Type: QuestionTypeBoolean,
			},
			{
				ID: "wc-meds", SurveyID: sid, OrderIndex: 2, Required: true,
				Text:    "Were all medications taken as prescribed?",
				Type:    QuestionTypeSingleChoice,
				Options: choice("wc-meds", "yes", "Yes", "missed_some", "Missed some doses", "unsure", "Not sure"),
			},
			{
				ID: "wc-pain", SurveyID: sid, OrderIndex: 3, Required: true,
				Text:       "Pain level reported by the patient (0-10)",
				Type:       QuestionTypeNumber,
				Validation: &Constraints{Min: Floatp(0), Max: Floatp(10)},
			},
			{
				ID: "wc-visit", SurveyID: sid, OrderIndex: 4, Required: true,
				Text: "Date of your last in-person visit",
				Type: QuestionTypeDate,
			},
			{
				ID: "wc-notes", SurveyID: sid, OrderIndex: 5, Required: false,
				Text:       "Anything the care team should know?",
				Type:       QuestionTypeText,
				Validation: &Constraints{MaxLength: Intp(1000)},
			},
		},
	}
}
