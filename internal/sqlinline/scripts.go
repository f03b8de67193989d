package sqlinline

const QProjectExists = `--sql 5d5222b2-97fc-4f4f-82c0-ea6bad81579d
select exists(select 1 from projects where id = $1);
`

const QProjectVoiceMapping = `--sql f368d9ba-9884-4d58-836e-68f34a57f6f1
select voice_mapping
from projects
where id = $1;
`

const QScriptSegments = `--sql cbcd5693-0d31-4013-bfde-c1ae9f63131d
select s.id, s.position, s.text, s.speaker_id, coalesce(s.speaker_name, ''), coalesce(s.voice_id, '')
from script_segments s
where s.project_id = $1
order by s.position asc, s.id asc;
`
