package memstore

import (
	"context"
	"sort"

	"attendtrack/internal/apperr"
	"attendtrack/internal/attendance"
	"attendtrack/internal/audit"
	"attendtrack/internal/biometric"
	"attendtrack/internal/marks"
	"attendtrack/internal/student"
	"attendtrack/internal/subject"
)

// Students implements student.Store.
type Students struct{ s *Store }

func (v *Students) Create(_ context.Context, st student.Student, seeds []subject.Seed) (student.Student, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.studentByHandle(st.USN); ok {
		return student.Student{}, student.ErrDuplicate
	}
	if _, ok := v.s.studentByHandle(st.Username); ok {
		return student.Student{}, student.ErrDuplicate
	}
	st.ID = v.s.id()
	st.CreatedAt = v.s.now().UTC()
	v.s.students = append(v.s.students, st)
	for _, seed := range seeds {
		v.s.subjects = append(v.s.subjects, subject.Subject{
			ID:        v.s.id(),
			StudentID: st.ID,
			Name:      seed.Name,
			Code:      seed.Code,
			Elective:  seed.Elective,
		})
	}
	return st, nil
}

func (v *Students) ByHandle(_ context.Context, handle string) (student.Student, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if st, ok := v.s.studentByHandle(handle); ok {
		return st, nil
	}
	return student.Student{}, apperr.ErrNotFound
}

func (v *Students) ByID(_ context.Context, id int64) (student.Student, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if st, ok := v.s.studentByID(id); ok {
		return st, nil
	}
	return student.Student{}, apperr.ErrNotFound
}

func (v *Students) List(context.Context) ([]student.Student, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := append([]student.Student{}, v.s.students...)
	sort.Slice(out, func(i, j int) bool { return out[i].USN < out[j].USN })
	return out, nil
}

func (v *Students) Mappings(context.Context) ([]student.Mapping, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := []student.Mapping{}
	for _, sub := range v.s.subjects {
		st, _ := v.s.studentByID(sub.StudentID)
		out = append(out, student.Mapping{
			SubjectID:   sub.ID,
			SubjectName: sub.Name,
			SubjectCode: sub.Code,
			StudentID:   st.ID,
			USN:         st.USN,
			StudentName: st.Name,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].USN < out[j].USN })
	return out, nil
}

func (v *Students) Subjects(_ context.Context, studentID int64) ([]subject.Subject, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.subjectsOf(studentID), nil
}

func (v *Students) CredentialCount(_ context.Context, studentID int64) (int, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return len(v.s.credentialsOf(studentID)), nil
}

func (v *Students) SetPrompted(_ context.Context, studentID int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for i := range v.s.students {
		if v.s.students[i].ID == studentID {
			v.s.students[i].BiometricPrompted = true
			return nil
		}
	}
	return apperr.ErrNotFound
}

// Attendance implements attendance.Store.
type Attendance struct{ s *Store }

func (v *Attendance) SubjectCounts(_ context.Context, studentID int64) ([]attendance.RawCount, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := []attendance.RawCount{}
	for _, sub := range v.s.subjectsOf(studentID) {
		rc := attendance.RawCount{Subject: sub}
		for _, rec := range v.s.attendance {
			if rec.SubjectID != sub.ID || rec.StudentID != studentID {
				continue
			}
			rc.Total++
			if rec.Status == attendance.Present {
				rc.Present++
			}
		}
		out = append(out, rc)
	}
	return out, nil
}

func (v *Attendance) OwnedSubject(_ context.Context, studentID, subjectID int64) (subject.Subject, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if sub, ok := v.s.ownedSubject(studentID, subjectID); ok {
		return sub, nil
	}
	return subject.Subject{}, apperr.ErrNotFound
}

func (v *Attendance) InsertRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	rec.ID = v.s.id()
	rec.CreatedAt = v.s.now().UTC()
	v.s.attendance = append(v.s.attendance, rec)
	return rec, nil
}

func (v *Attendance) RecordsOn(_ context.Context, studentID int64, date string) ([]attendance.DayEntry, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := []attendance.DayEntry{}
	for _, rec := range v.s.attendance {
		if rec.StudentID != studentID || rec.Date != date {
			continue
		}
		sub, _ := v.s.subjectByID(rec.SubjectID)
		out = append(out, attendance.DayEntry{
			AttendanceID: rec.ID,
			SubjectName:  sub.Name,
			SubjectCode:  sub.Code,
			Status:       rec.Status,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubjectName < out[j].SubjectName })
	return out, nil
}

func (v *Attendance) MonthCounts(_ context.Context, studentID int64, from, to string) (map[string]attendance.DayCount, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := map[string]attendance.DayCount{}
	for _, rec := range v.s.attendance {
		if rec.StudentID != studentID || rec.Date < from || rec.Date >= to {
			continue
		}
		dc := out[rec.Date]
		if rec.Status == attendance.Present {
			dc.Present++
		} else {
			dc.Absent++
		}
		out[rec.Date] = dc
	}
	return out, nil
}

func (v *Attendance) SubjectRecords(_ context.Context, studentID, subjectID int64) ([]attendance.SubjectDate, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := []attendance.SubjectDate{}
	for _, rec := range v.s.attendance {
		if rec.StudentID == studentID && rec.SubjectID == subjectID {
			out = append(out, attendance.SubjectDate{AttendanceID: rec.ID, Date: rec.Date, Status: rec.Status})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].AttendanceID > out[j].AttendanceID
	})
	return out, nil
}

func (v *Attendance) DeleteOwned(_ context.Context, studentID, recordID int64) error {
	return v.delete(func(rec attendance.Record) bool {
		return rec.ID == recordID && rec.StudentID == studentID
	})
}

func (v *Attendance) DeleteRecord(_ context.Context, recordID int64) error {
	return v.delete(func(rec attendance.Record) bool { return rec.ID == recordID })
}

func (v *Attendance) delete(match func(attendance.Record) bool) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for i, rec := range v.s.attendance {
		if match(rec) {
			v.s.attendance = append(v.s.attendance[:i], v.s.attendance[i+1:]...)
			return nil
		}
	}
	return apperr.ErrNotFound
}

func (v *Attendance) ListAll(context.Context) ([]attendance.AdminRecord, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := []attendance.AdminRecord{}
	for _, rec := range v.s.attendance {
		st, _ := v.s.studentByID(rec.StudentID)
		sub, _ := v.s.subjectByID(rec.SubjectID)
		out = append(out, attendance.AdminRecord{
			ID:          rec.ID,
			StudentID:   st.ID,
			USN:         st.USN,
			StudentName: st.Name,
			SubjectName: sub.Name,
			Date:        rec.Date,
			Status:      rec.Status,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (v *Attendance) SubjectNames(context.Context) ([]string, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	names := map[string]struct{}{}
	for _, sub := range v.s.subjects {
		names[sub.Name] = struct{}{}
	}
	return sortedKeys(names), nil
}

// Marks implements marks.Store.
type Marks struct{ s *Store }

func (v *Marks) Subjects(_ context.Context, studentID int64) ([]subject.Subject, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.subjectsOf(studentID), nil
}

func (v *Marks) OwnsSubject(_ context.Context, studentID, subjectID int64) (bool, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	_, ok := v.s.ownedSubject(studentID, subjectID)
	return ok, nil
}

func (v *Marks) Entries(_ context.Context, studentID int64) ([]marks.Entry, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := []marks.Entry{}
	for k, score := range v.s.marks {
		if k.studentID == studentID {
			out = append(out, marks.Entry{StudentID: k.studentID, SubjectID: k.subjectID, IA: k.ia, Obtained: score, UpdatedAt: v.s.marksAt[k]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubjectID != out[j].SubjectID {
			return out[i].SubjectID < out[j].SubjectID
		}
		return out[i].IA < out[j].IA
	})
	return out, nil
}

func (v *Marks) Upsert(_ context.Context, e marks.Entry) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	k := marksKey{e.StudentID, e.SubjectID, e.IA}
	v.s.marks[k] = e.Obtained
	v.s.marksAt[k] = v.s.now().UTC()
	return nil
}

func (v *Marks) Delete(_ context.Context, studentID, subjectID int64, ia int) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	k := marksKey{studentID, subjectID, ia}
	delete(v.s.marks, k)
	delete(v.s.marksAt, k)
	return nil
}

// Biometric implements biometric.Store.
type Biometric struct{ s *Store }

func account(st student.Student) biometric.Account {
	return biometric.Account{ID: st.ID, USN: st.USN, Username: st.Username, Name: st.Name, Prompted: st.BiometricPrompted}
}

func (v *Biometric) AccountByHandle(_ context.Context, handle string) (biometric.Account, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if st, ok := v.s.studentByHandle(handle); ok {
		return account(st), nil
	}
	return biometric.Account{}, apperr.ErrNotFound
}

func (v *Biometric) AccountByID(_ context.Context, id int64) (biometric.Account, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if st, ok := v.s.studentByID(id); ok {
		return account(st), nil
	}
	return biometric.Account{}, apperr.ErrNotFound
}

func (v *Biometric) Credentials(_ context.Context, studentID int64) ([]biometric.Credential, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.credentialsOf(studentID), nil
}

func (v *Biometric) AddCredential(_ context.Context, studentID int64, c biometric.Credential) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	idx := -1
	for i := range v.s.students {
		if v.s.students[i].ID == studentID {
			idx = i
		}
	}
	if idx < 0 {
		return 0, apperr.ErrNotFound
	}
	for _, row := range v.s.credentials {
		if row.studentID == studentID && row.cred.ID == c.ID {
			return 0, biometric.ErrDuplicateCredential
		}
	}
	v.s.credentials = append(v.s.credentials, credentialRow{studentID: studentID, cred: c})
	v.s.students[idx].BiometricPrompted = true
	return len(v.s.credentialsOf(studentID)), nil
}

func (v *Biometric) RemoveCredential(_ context.Context, studentID int64, credentialID string) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for i, row := range v.s.credentials {
		if row.studentID == studentID && row.cred.ID == credentialID {
			v.s.credentials = append(v.s.credentials[:i], v.s.credentials[i+1:]...)
			return len(v.s.credentialsOf(studentID)), nil
		}
	}
	return 0, apperr.ErrNotFound
}

func (v *Biometric) SetPrompted(ctx context.Context, studentID int64) error {
	return (&Students{v.s}).SetPrompted(ctx, studentID)
}

// Audit implements audit.Store.
type Audit struct{ s *Store }

func (v *Audit) Insert(_ context.Context, e audit.Event) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, existing := range v.s.events {
		if existing.ID == e.ID {
			return nil
		}
	}
	v.s.events = append(v.s.events, e)
	return nil
}

func (v *Audit) List(_ context.Context, limit int) ([]audit.Event, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := append([]audit.Event{}, v.s.events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ student.Store    = (*Students)(nil)
	_ attendance.Store = (*Attendance)(nil)
	_ marks.Store      = (*Marks)(nil)
	_ biometric.Store  = (*Biometric)(nil)
	_ audit.Store      = (*Audit)(nil)
)
