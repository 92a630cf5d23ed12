// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2014-2015 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package testutil

import (
	"reflect"
)

// Restore restores some global state modified for testing.
type Restore func()

// Backup saves the current values of the given pointers and returns a
// function that restores them.
func Backup(mockablesByPtr ...interface{}) (restore Restore) {
	backup := backupMockables(mockablesByPtr)

	return func() {
		for i, ptr := range mockablesByPtr {
			mockedV := reflect.ValueOf(ptr).Elem()
			mockedV.Set(backup[i])
		}
	}
}

func backupMockables(mockablesByPtr []interface{}) (backup []reflect.Value) {
	backup = make([]reflect.Value, len(mockablesByPtr))
	for i, ptr := range mockablesByPtr {
		ptrV := reflect.ValueOf(ptr)
		if ptrV.Type().Kind() != reflect.Ptr {
			panic("Backup: expected pointers to values")
		}
		backup[i] = reflect.ValueOf(ptrV.Elem().Interface())
	}
	return backup
}

// Mock sets the value behind mockablePtr to mocked and returns a function
// restoring the previous value.
func Mock(mockablePtr interface{}, mocked interface{}) (restore Restore) {
	restore = Backup(mockablePtr)
	mockV := reflect.ValueOf(mockablePtr).Elem()
	mockV.Set(reflect.ValueOf(mocked))
	return restore
}
