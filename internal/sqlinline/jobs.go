package sqlinline

const jobColumns = `id, project_id, status, progress, current_chunk, total_chunks, chunk_progress, eta_seconds, output_path, audio_duration, error_message, voice_mapping, options, cancel_requested, created_at, started_at, completed_at, updated_at, version`

const QJobInsert = `--sql d20420e1-6b0e-46ec-82f7-ef290ac10560
insert into generation_jobs (
    id, project_id, status, progress, current_chunk, total_chunks, chunk_progress, eta_seconds,
    output_path, audio_duration, error_message, voice_mapping, options, cancel_requested,
    created_at, started_at, completed_at, updated_at, version
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19);
`

const QJobUpdate = `--sql f5ed2b94-67b3-48df-8145-40fc8a366fd3
update generation_jobs
set status = $2,
    progress = $3,
    current_chunk = $4,
    total_chunks = $5,
    chunk_progress = $6,
    eta_seconds = $7,
    output_path = $8,
    audio_duration = $9,
    error_message = $10,
    cancel_requested = $11,
    started_at = $12,
    completed_at = $13,
    updated_at = $14,
    version = version + 1
where id = $1 and version = $15;
`

const QJobGet = `--sql f0cf69d9-485e-4ade-ac95-94b48fc2c732
select ` + jobColumns + `
from generation_jobs
where id = $1;
`

const QJobActiveByProject = `--sql 0d19afc9-70b1-4328-bfe5-c06ba7b8c54c
select ` + jobColumns + `
from generation_jobs
where project_id = $1
  and status in ('queued', 'loading_model', 'generating', 'stitching')
limit 1;
`

const QJobListByProject = `--sql 421f4b61-4190-4d0f-9bf1-f81659310447
select ` + jobColumns + `
from generation_jobs
where project_id = $1
order by created_at desc, id desc;
`

const QJobListByStatus = `--sql 703c17a0-54a6-4f62-a043-36a6a20e1dfd
select ` + jobColumns + `
from generation_jobs
where status = any($1::text[])
order by created_at desc, id desc;
`

const QJobCountByStatus = `--sql 86d0ad48-d159-4bdf-a3c8-4b942312ea64
select status, count(*)
from generation_jobs
group by status;
`
